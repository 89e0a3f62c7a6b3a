// Package cmd wires the fabrixctl cobra command tree: authentication,
// credential management, application deployment, and configuration.
package cmd
