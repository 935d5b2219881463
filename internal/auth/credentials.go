package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Scopes requested for every Google client the workers build.
var Scopes = []string{
	sheets.SpreadsheetsScope,
	drive.DriveScope,
	"https://www.googleapis.com/auth/devstorage.read_write",
}

// ErrNoToken is returned when an OAuth client secret is configured but the
// user has not completed the consent flow yet.
var ErrNoToken = errors.New("no OAuth token; run `transcriptq auth` first")

// Config points at the credential material on disk.
type Config struct {
	CredentialsFile string
	TokenFile       string
}

// Kind reports what the credentials file contains.
type Kind string

const (
	KindServiceAccount Kind = "service_account"
	KindOAuthClient    Kind = "oauth_client"
)

// Handle is the explicit credential value every Google client is built from.
type Handle struct {
	Kind    Kind
	options []option.ClientOption
}

// ClientOptions returns the options to pass to a google.golang.org/api or
// cloud.google.com/go client constructor.
func (h *Handle) ClientOptions() []option.ClientOption {
	return h.options
}

// Load reads the credentials file once. Service-account keys are used as is;
// OAuth client secrets are combined with the cached user token.
func Load(ctx context.Context, cfg Config) (*Handle, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	kind, err := detectKind(b)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindServiceAccount:
		creds, err := google.CredentialsFromJSON(ctx, b, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		return &Handle{Kind: kind, options: []option.ClientOption{option.WithCredentials(creds)}}, nil
	default:
		config, err := google.ConfigFromJSON(b, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse client secret: %w", err)
		}
		tok, err := tokenFromFile(cfg.TokenFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrNoToken
			}
			return nil, fmt.Errorf("unable to read token: %w", err)
		}
		client := config.Client(ctx, tok)
		return &Handle{Kind: kind, options: []option.ClientOption{option.WithHTTPClient(client)}}, nil
	}
}

func detectKind(b []byte) (Kind, error) {
	var head struct {
		Type      string          `json:"type"`
		Installed json.RawMessage `json:"installed"`
		Web       json.RawMessage `json:"web"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return "", fmt.Errorf("credentials file is not JSON: %w", err)
	}
	switch {
	case head.Type == string(KindServiceAccount):
		return KindServiceAccount, nil
	case len(head.Installed) > 0 || len(head.Web) > 0:
		return KindOAuthClient, nil
	}
	return "", fmt.Errorf("unrecognized credentials file (type %q)", head.Type)
}

// RunInstalledFlow walks the user through the installed-app consent flow
// and caches the resulting token at cfg.TokenFile.
func RunInstalledFlow(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("unable to read credentials file: %w", err)
	}
	if kind, err := detectKind(b); err != nil {
		return err
	} else if kind == KindServiceAccount {
		fmt.Fprintln(out, "Service account credentials need no consent flow.")
		return nil
	}

	config, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return fmt.Errorf("unable to parse client secret: %w", err)
	}
	if config.RedirectURL == "" {
		config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	}

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser:\n%v\n", authURL)
	fmt.Fprint(out, "Enter authorization code: ")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("unable to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("empty authorization code")
	}

	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	if err := saveToken(cfg.TokenFile, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", cfg.TokenFile)
	return nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
