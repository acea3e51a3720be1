package cmd

import (
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/candyvend/pkg/scoring"
	"github.com/sw33tLie/candyvend/pkg/stock"
	"github.com/sw33tLie/candyvend/pkg/whttp"
)

func newHTTPClient(cmd *cobra.Command) (*retryablehttp.Client, error) {
	proxy, _ := cmd.Flags().GetString("proxy")
	return whttp.NewClient(whttp.ClientOptions{
		Proxy:    proxy,
		Timeout:  viper.GetDuration("http.timeout"),
		RetryMax: viper.GetInt("http.retry_max"),
	})
}

func baseURL() string {
	return strings.TrimRight(viper.GetString("api.base_url"), "/")
}

func newStockRepository(cmd *cobra.Command) (*stock.Repository, error) {
	client, err := newHTTPClient(cmd)
	if err != nil {
		return nil, err
	}
	return stock.New(baseURL(), client), nil
}

func newScoringClient(cmd *cobra.Command) (*scoring.Client, error) {
	client, err := newHTTPClient(cmd)
	if err != nil {
		return nil, err
	}
	return scoring.New(baseURL(), client), nil
}
