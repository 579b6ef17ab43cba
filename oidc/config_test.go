package oidc

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSecret_String(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert := assert.New(t)
		const want = RedactedClientSecret
		secret := ClientSecret("bob's phone number")
		assert.Equalf(want, secret.String(), "ClientSecret.String() = %v, want %v", secret.String(), want)
	})
}

func TestClientSecret_MarshalJSON(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		want := fmt.Sprintf(`"%s"`, RedactedClientSecret)
		secret := ClientSecret("bob's phone number")
		got, err := secret.MarshalJSON()
		require.NoError(err)
		assert.Equalf([]byte(want), got, "ClientSecret.MarshalJSON() = %s, want %s", got, want)
	})
}

func TestNewConfig(t *testing.T) {
	t.Parallel()
	testCaPem := TestGenerateCA(t, []string{"localhost"})
	testNow := func() time.Time {
		return time.Now().Add(-1 * time.Minute)
	}

	type args struct {
		issuer       string
		clientID     string
		clientSecret ClientSecret
		redirectURL  string
		opt          []Option
	}
	tests := []struct {
		name      string
		args      args
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "valid-with-all-valid-opts",
			args: args{
				issuer:       "https://your-tenant.example.com/",
				clientID:     "YOUR_CLIENT_ID",
				clientSecret: "YOUR_CLIENT_SECRET",
				redirectURL:  "http://localhost:3000/callback",
				opt: []Option{
					WithScopes("profile", "email"),
					WithAudience("https://to-dos.example.com"),
					WithProviderCA(testCaPem),
					WithNow(testNow),
					WithHTTPTimeout(5 * time.Second),
				},
			},
		},
		{
			name: "empty-issuer",
			args: args{
				issuer:       "",
				clientID:     "YOUR_CLIENT_ID",
				clientSecret: "YOUR_CLIENT_SECRET",
				redirectURL:  "http://localhost:3000/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "bad-issuer-scheme",
			args: args{
				issuer:       "ldap://bad-scheme.example.com",
				clientID:     "YOUR_CLIENT_ID",
				clientSecret: "YOUR_CLIENT_SECRET",
				redirectURL:  "http://localhost:3000/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "empty-client-id",
			args: args{
				issuer:       "https://your-tenant.example.com/",
				clientID:     "",
				clientSecret: "YOUR_CLIENT_SECRET",
				redirectURL:  "http://localhost:3000/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "empty-client-secret",
			args: args{
				issuer:       "https://your-tenant.example.com/",
				clientID:     "YOUR_CLIENT_ID",
				clientSecret: "",
				redirectURL:  "http://localhost:3000/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "empty-redirect-url",
			args: args{
				issuer:       "https://your-tenant.example.com/",
				clientID:     "YOUR_CLIENT_ID",
				clientSecret: "YOUR_CLIENT_SECRET",
				redirectURL:  "",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.args.issuer, tt.args.clientID, tt.args.clientSecret, tt.args.redirectURL, tt.args.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			require.NotNil(got)
			assert.Equal(tt.args.issuer, got.Issuer)
			assert.Equal(tt.args.clientID, got.ClientID)
			assert.Equal(tt.args.redirectURL, got.RedirectURL)
		})
	}
	t.Run("reports-every-problem", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewConfig("", "", "", "")
		require.Error(err)
		assert.Contains(err.Error(), "client id is empty")
		assert.Contains(err.Error(), "client secret is empty")
		assert.Contains(err.Error(), "redirect URL is empty")
		assert.Contains(err.Error(), "issuer is empty")
	})
	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewConfig("https://your-tenant.example.com/", "YOUR_CLIENT_ID", "YOUR_CLIENT_SECRET", "http://localhost:3000/callback")
		require.NoError(err)
		assert.Equal(DefaultHTTPTimeout, c.HTTPTimeout)
		assert.NotNil(c.Logger)
	})
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	t.Run("valid-ca", func(t *testing.T) {
		require := require.New(t)
		testCaPem := TestGenerateCA(t, []string{"localhost"})
		c, err := NewConfig("https://your-tenant.example.com/", "YOUR_CLIENT_ID", "YOUR_CLIENT_SECRET", "http://localhost:3000/callback", WithProviderCA(testCaPem))
		require.NoError(err)
		client, err := c.HTTPClient()
		require.NoError(err)
		require.NotNil(client)
		require.Equal(c.HTTPTimeout, client.Timeout)
	})
	t.Run("invalid-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewConfig("https://your-tenant.example.com/", "YOUR_CLIENT_ID", "YOUR_CLIENT_SECRET", "http://localhost:3000/callback", WithProviderCA("not a pem"))
		require.NoError(err)
		_, err = c.HTTPClient()
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidCACert), "wanted \"%s\" but got \"%s\"", ErrInvalidCACert, err)
	})
}
