package firebase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/davidpalacios/shopline-backend/pkg/config"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

// Client owns the Firebase Admin app plus the Auth and Firestore handles.
type Client struct {
	app       *firebase.App
	auth      *firebaseauth.Client
	firestore *firestore.Client
	projectID string
}

// NewClient boots the Firebase Admin SDK against the configured project.
func NewClient(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}

	opts := []option.ClientOption{}
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.ApplicationCredentials != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating firebase auth client: %w", err)
	}

	fsClient, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "firebase client initialized")
	}

	return &Client{
		app:       app,
		auth:      authClient,
		firestore: fsClient,
		projectID: projectID,
	}, nil
}

// Auth returns the Admin Auth handle.
func (c *Client) Auth() *firebaseauth.Client {
	if c == nil {
		return nil
	}
	return c.auth
}

// Firestore returns the Firestore handle.
func (c *Client) Firestore() *firestore.Client {
	if c == nil {
		return nil
	}
	return c.firestore
}

// ProjectID returns the configured GCP project.
func (c *Client) ProjectID() string {
	if c == nil {
		return ""
	}
	return c.projectID
}

// Close releases the Firestore connection. The Admin app holds no resources.
func (c *Client) Close() error {
	if c == nil || c.firestore == nil {
		return nil
	}
	return c.firestore.Close()
}
