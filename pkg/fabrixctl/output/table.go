package output

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/client"
)

func WriteAppTable(w io.Writer, apps []client.Application) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tENVIRONMENT\tVERSION\tSTATUS\tUPDATED")
	for _, a := range apps {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Name, a.Environment, orDash(a.Version), orDash(a.Status), formatTime(a.UpdatedAt))
	}
	_ = tw.Flush()
}

func WriteDeploymentTable(w io.Writer, deployments []client.Deployment) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tAPP\tENVIRONMENT\tSTATUS\tSTARTED")
	for _, d := range deployments {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.AppName, d.Environment, d.Status, formatTime(d.StartedAt))
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
