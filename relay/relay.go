// Package relay serves the two endpoints the pipeline's connect step relies on.
// It builds the YouTube authorization URL and acknowledges the callback; the
// authorization code is never exchanged for tokens.
package relay

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"shorts-studio/authsignal"
)

// Config holds the OAuth client and the app the callback returns to
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// AppURL receives ?youtube_success=true and the posted message
	AppURL string
}

// Server is the relay HTTP handler
type Server struct {
	oauth  *oauth2.Config
	appURL string
	logger *log.Logger
}

// New validates cfg and builds the relay
func New(cfg Config, logger *log.Logger) (*Server, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET not set")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("YOUTUBE_REDIRECT_URL not set")
	}
	if _, err := url.Parse(cfg.AppURL); err != nil || cfg.AppURL == "" {
		return nil, errors.New("app url must be a valid URL")
	}
	if logger == nil {
		logger = log.Default().WithPrefix("relay")
	}
	return &Server{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
		},
		appURL: strings.TrimRight(cfg.AppURL, "/"),
		logger: logger,
	}, nil
}

// Handler exposes the relay routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/youtube/url", s.handleAuthURL)
	mux.HandleFunc("/auth/youtube/callback", s.handleCallback)
	return mux
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state := uuid.NewString()
	authURL := s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	s.logger.Info("issued authorization url")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"url": authURL})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.logger.Warn("authorization denied", "error", e)
		http.Error(w, "authorization failed: "+e, http.StatusBadRequest)
		return
	}
	if q.Get("code") == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}
	// the code is intentionally not exchanged
	s.logger.Info("✅ authorization callback received")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := callbackPage.Execute(w, map[string]string{
		"MessageURL":  s.appURL + "/message",
		"FallbackURL": s.appURL + "/?" + authsignal.QueryFlag + "=true",
		"Type":        authsignal.TypeYouTubeAuthSuccess,
	})
	if err != nil {
		s.logger.Error("render callback page", "error", err)
	}
}

var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html><head><title>Connected</title></head>
<body>
<p>Authentication successful. This window will close automatically.</p>
<script>
  var msg = { type: {{.Type}} };
  if (window.opener) {
    window.opener.postMessage(msg, '*');
  }
  fetch({{.MessageURL}}, {
    method: 'POST',
    headers: { 'Content-Type': 'application/json' },
    body: JSON.stringify(msg)
  }).then(function () { window.close(); })
    .catch(function () { window.location.href = {{.FallbackURL}}; });
</script>
<noscript><a href="{{.FallbackURL}}">Return to shorts-studio</a></noscript>
</body></html>
`))
