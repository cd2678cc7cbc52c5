package cli

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-portal-session/api"
	"github.com/jrsteele09/go-portal-session/auth"
	"github.com/jrsteele09/go-portal-session/credstore"
	"github.com/jrsteele09/go-portal-session/internal/config"
	"github.com/jrsteele09/go-portal-session/session"
	"github.com/jrsteele09/go-portal-session/transport"
)

// sdk bundles the wired session stack shared by every command
type sdk struct {
	config     config.Config
	sessions   *session.Manager
	apiClient  *api.Client
	controller *auth.Controller
}

// newSDK wires credential store, session manager, api client, interceptor,
// and controller together. The api client and interceptor reference each
// other, so the authed http client is attached after both exist.
func newSDK() (*sdk, error) {
	cfg := config.New()

	repo := credstore.NewFileRepo(cfg.GetCredentialsFile())
	sessions, err := session.NewManager(repo,
		session.WithRefreshThreshold(cfg.GetRefreshThreshold()),
		session.WithSessionTimeout(cfg.GetSessionTimeout()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[newSDK] session.NewManager")
	}

	apiClient := api.New(cfg.GetAPIBaseURL())

	interceptor, err := transport.NewInterceptor(nil, sessions, apiClient.Refresh,
		transport.WithLogger(log.Logger),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[newSDK] transport.NewInterceptor")
	}
	apiClient.SetHTTPClient(&http.Client{
		Transport: interceptor,
		Timeout:   cfg.GetRequestTimeout(),
	})

	controller, err := auth.NewController(apiClient, sessions, auth.WithLogger(log.Logger))
	if err != nil {
		return nil, errors.Wrap(err, "[newSDK] auth.NewController")
	}
	controller.Listen(interceptor)

	return &sdk{
		config:     cfg,
		sessions:   sessions,
		apiClient:  apiClient,
		controller: controller,
	}, nil
}
