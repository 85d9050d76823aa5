package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	authoauth "github.com/collectionlab/oauthcore/pkg/auth/oauth"
	"github.com/collectionlab/oauthcore/pkg/auth/store"
	"github.com/collectionlab/oauthcore/pkg/logger"
	"github.com/collectionlab/oauthcore/pkg/oauth"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Acquire, refresh, or clear OAuth 2.0 tokens",
	}
	cmd.AddCommand(newTokenGetCommand(), newTokenRefreshCommand(), newTokenClearCommand())
	return cmd
}

func bindRequestConfigFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("grant-type", "client_credentials", "Grant type: authorization_code, client_credentials, or password")
	flags.String("access-token-url", "", "Token endpoint URL")
	flags.String("refresh-token-url", "", "Refresh endpoint URL (defaults to access-token-url)")
	flags.String("authorization-url", "", "Authorization endpoint URL (authorization_code only)")
	flags.String("callback-url", "", "Local redirect URL (authorization_code only)")
	flags.String("client-id", "", "OAuth client id")
	flags.String("client-secret", "", "OAuth client secret")
	flags.String("username", "", "Resource owner username (password grant only)")
	flags.String("password", "", "Resource owner password (password grant only)")
	flags.String("scope", "", "Requested scope")
	flags.String("credentials-placement", "body", "Where to send client credentials: body or basic_auth_header")
	flags.String("credentials-id", "", "Caller-chosen label distinguishing multiple credentials on one endpoint")
	flags.String("collection-uid", "default", "Collection identifier addressing the credential store")
	flags.Bool("pkce", true, "Use PKCE for the authorization_code grant")
	flags.Bool("auto-refresh-token", true, "Attempt a refresh before falling back to a fresh acquisition")
	flags.Bool("auto-fetch-token", true, "Perform a fresh acquisition when no usable cached token exists")
	flags.Bool("force-fetch", false, "Bypass the credential store entirely")
}

func requestConfigFromFlags() *oauth.RequestConfig {
	placement := oauth.PlacementBody
	if viper.GetString("credentials-placement") == string(oauth.PlacementBasicAuthHeader) {
		placement = oauth.PlacementBasicAuthHeader
	}
	return &oauth.RequestConfig{
		AccessTokenURL:       viper.GetString("access-token-url"),
		RefreshTokenURL:      viper.GetString("refresh-token-url"),
		AuthorizationURL:     viper.GetString("authorization-url"),
		CallbackURL:          viper.GetString("callback-url"),
		ClientID:             viper.GetString("client-id"),
		ClientSecret:         viper.GetString("client-secret"),
		Username:             viper.GetString("username"),
		Password:             viper.GetString("password"),
		Scope:                viper.GetString("scope"),
		PKCE:                 viper.GetBool("pkce"),
		CredentialsPlacement: placement,
		CredentialsID:        viper.GetString("credentials-id"),
		AutoRefreshToken:     viper.GetBool("auto-refresh-token"),
		AutoFetchToken:       viper.GetBool("auto-fetch-token"),
	}
}

func newOrchestrator() (*authoauth.Orchestrator, error) {
	provider, err := store.NewProvider(store.Options{FilePath: viper.GetString("store")})
	if err != nil {
		return nil, fmt.Errorf("construct credential store: %w", err)
	}
	return authoauth.NewOrchestrator(provider, authoauth.NewClient(), authoauth.NewBrowserDriver()), nil
}

func printResult(result *oauth.TokenResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newTokenGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Acquire a token, using the cache when possible",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orchestrator, err := newOrchestrator()
			if err != nil {
				return err
			}
			cfg := requestConfigFromFlags()
			collectionUID := viper.GetString("collection-uid")
			forceFetch := viper.GetBool("force-fetch")

			ctx := cmd.Context()
			var result *oauth.TokenResult
			switch viper.GetString("grant-type") {
			case string(oauth.GrantAuthorizationCode):
				result, err = orchestrator.GetTokenUsingAuthorizationCode(ctx, cfg, collectionUID, forceFetch)
			case string(oauth.GrantPassword):
				result, err = orchestrator.GetTokenUsingPasswordCredentials(ctx, cfg, collectionUID, forceFetch)
			default:
				result, err = orchestrator.GetTokenUsingClientCredentials(ctx, cfg, collectionUID, forceFetch)
			}
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
	bindRequestConfigFlags(cmd)
	for _, name := range []string{
		"grant-type", "access-token-url", "refresh-token-url", "authorization-url", "callback-url",
		"client-id", "client-secret", "username", "password", "scope", "credentials-placement",
		"credentials-id", "collection-uid", "pkce", "auto-refresh-token", "auto-fetch-token", "force-fetch",
	} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			logger.Errorf("error binding %s flag: %v", name, err)
		}
	}
	return cmd
}

func newTokenRefreshCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Force a refresh_token exchange, bypassing the cache decision tree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orchestrator, err := newOrchestrator()
			if err != nil {
				return err
			}
			cfg := requestConfigFromFlags()
			result, err := orchestrator.RefreshToken(cmd.Context(), cfg, viper.GetString("collection-uid"))
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
	bindRequestConfigFlags(cmd)
	// Bound only when refresh runs: binding at construction would replace the
	// get command's bindings for the same viper keys.
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		for _, name := range []string{"access-token-url", "refresh-token-url", "client-id", "client-secret", "credentials-id", "collection-uid"} {
			if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
				logger.Errorf("error binding %s flag: %v", name, err)
			}
		}
	}
	return cmd
}

func newTokenClearCommand() *cobra.Command {
	var accessTokenURL, credentialsID, collectionUID string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove a cached credential",
		RunE: func(_ *cobra.Command, _ []string) error {
			provider, err := store.NewProvider(store.Options{FilePath: viper.GetString("store")})
			if err != nil {
				return err
			}
			key := oauth.StoreKey{CollectionUID: collectionUID, TokenURL: accessTokenURL, CredentialsID: credentialsID}
			return provider.Clear(key)
		},
	}
	cmd.Flags().StringVar(&accessTokenURL, "access-token-url", "", "Token endpoint URL")
	cmd.Flags().StringVar(&credentialsID, "credentials-id", "", "Caller-chosen credentials label")
	cmd.Flags().StringVar(&collectionUID, "collection-uid", "default", "Collection identifier")
	return cmd
}
