// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"

	"github.com/propmap/propmap/mapview"
	"github.com/propmap/propmap/provider"
)

var adcOptions struct {
	Project     string
	DisplayName string
}

// apiKeyFromADC finds the Maps key named displayName in the project of the
// Application Default Credentials and returns its secret.
func apiKeyFromADC(ctx context.Context, projectID, displayName string) (string, error) {
	if projectID == "" {
		creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return "", fmt.Errorf("finding default credentials: %w", err)
		}

		projectID = creds.ProjectID
	}

	if projectID == "" {
		return "", errors.New("no project in the default credentials, use --project")
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	it := client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	})

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("listing keys: %w", err)
		}

		if key.DisplayName != displayName {
			continue
		}

		// ListKeys redacts the secret.
		resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: key.Name})
		if err != nil {
			return "", fmt.Errorf("getting key string: %w", err)
		}

		if resp.KeyString == "" {
			return "", fmt.Errorf("key %q has an empty key string", displayName)
		}

		return resp.KeyString, nil
	}

	return "", fmt.Errorf("key with display name %q not found in project %s", displayName, projectID)
}

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Map provider credentials",
}

var credentialProbe bool

var credentialCheckCmd = &cobra.Command{
	Use:   "check <provider> <token>",
	Short: "Validates a credential locally and, with --probe, against the provider",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		kind, err := provider.ParseKind(args[0])
		if err != nil {
			return err
		}

		if err := mapview.ValidateCredential(kind, args[1]); err != nil {
			return err
		}

		fmt.Printf("%s\tformat ok\n", kind)

		if !credentialProbe {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Loader.Timeout)
		defer cancel()

		m, err := sdkLoader(nil).Load(ctx, kind, args[1])
		if err != nil {
			if mapview.IsCredentialFailure(err) {
				return fmt.Errorf("%s rejected the credential: %w", kind, err)
			}

			return err
		}

		_ = m.Remove()

		fmt.Printf("%s\taccepted by provider\n", kind)

		return nil
	},
}

var credentialADCCmd = &cobra.Command{
	Use:   "adc",
	Short: "Prints the Maps API key found via Application Default Credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := apiKeyFromADC(cmd.Context(), adcOptions.Project, adcOptions.DisplayName)
		if err != nil {
			return err
		}

		if err := mapview.ValidateCredential(provider.KindGoogle, key); err != nil {
			logger.Warn().Err(err).Msg("key found but it does not look like a Maps key")
		}

		fmt.Println(key)

		return nil
	},
}

func init() {
	credentialCheckCmd.Flags().BoolVar(&credentialProbe, "probe", false, "load the provider SDK with the credential")

	for _, c := range []*cobra.Command{credentialADCCmd, serveCmd} {
		c.Flags().StringVar(&adcOptions.Project, "project", "", "Google Cloud project holding the key")
		c.Flags().StringVar(&adcOptions.DisplayName, "key-name", "PropMap Maps Key", "display name of the API key")
	}

	credentialCmd.AddCommand(credentialCheckCmd, credentialADCCmd)
	rootCmd.AddCommand(credentialCmd)
}
