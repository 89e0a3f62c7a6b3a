package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type AppService struct {
	client *Client
}

func (c *Client) Apps() *AppService {
	return &AppService{client: c}
}

type Application struct {
	Name        string    `json:"name"`
	Environment string    `json:"environment"`
	Status      string    `json:"status,omitempty"`
	Version     string    `json:"version,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

type AppListOptions struct {
	Environment string
}

func (s *AppService) List(ctx context.Context, opts AppListOptions) ([]Application, error) {
	endpoint := "api/v1/applications"
	params := url.Values{}
	if opts.Environment != "" {
		params.Set("environment", opts.Environment)
	}
	if encoded := params.Encode(); encoded != "" {
		endpoint = fmt.Sprintf("%s?%s", endpoint, encoded)
	}
	var apps []Application
	if err := s.client.Do(ctx, http.MethodGet, endpoint, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func (s *AppService) Get(ctx context.Context, name string) (*Application, error) {
	var app Application
	endpoint := "api/v1/applications/" + url.PathEscape(name)
	if err := s.client.Do(ctx, http.MethodGet, endpoint, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

type DeployRequest struct {
	Environment string `json:"environment"`
	Version     string `json:"version,omitempty"`
	Wait        bool   `json:"wait,omitempty"`
}

type Deployment struct {
	ID          string    `json:"id"`
	AppName     string    `json:"appName"`
	Environment string    `json:"environment"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
}

func (s *AppService) Deploy(ctx context.Context, appName string, req DeployRequest) (*Deployment, error) {
	var deployment Deployment
	endpoint := "api/v1/applications/" + url.PathEscape(appName) + "/deploy"
	if err := s.client.Do(ctx, http.MethodPost, endpoint, req, &deployment); err != nil {
		return nil, err
	}
	return &deployment, nil
}

func (s *AppService) Deployments(ctx context.Context, appName string) ([]Deployment, error) {
	var deployments []Deployment
	endpoint := "api/v1/applications/" + url.PathEscape(appName) + "/deployments"
	if err := s.client.Do(ctx, http.MethodGet, endpoint, nil, &deployments); err != nil {
		return nil, err
	}
	return deployments, nil
}
