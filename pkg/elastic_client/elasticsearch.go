package elastic_client

import (
	"context"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/railwatch/railwatch/pkg/util"
	"github.com/rs/zerolog/log"
)

var Client *elasticsearch.Client

func Connect() error {
	env := util.GetEnvironmentVariables()

	if env["RAILWATCH_ELASTICSEARCH_ADDRESS"] == "" {
		log.Info().Msg("Skipping Elasticsearch setup")
		return nil
	}

	tp := http.DefaultTransport.(*http.Transport).Clone()
	tp.TLSClientConfig.InsecureSkipVerify = true

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{env["RAILWATCH_ELASTICSEARCH_ADDRESS"]},
		Username:  env["RAILWATCH_ELASTICSEARCH_USERNAME"],
		Password:  env["RAILWATCH_ELASTICSEARCH_PASSWORD"],
		Transport: tp,
	})
	if err != nil {
		return err
	}

	_, err = es.Info()
	if err != nil {
		return err
	}

	Client = es

	log.Info().Msgf("Elasticsearch client setup for %s", env["RAILWATCH_ELASTICSEARCH_ADDRESS"])

	return nil
}

// IndexRequest indexes a single document, silently doing nothing when no
// Elasticsearch address is configured.
func IndexRequest(req esapi.IndexRequest) {
	if Client == nil {
		return
	}

	res, err := req.Do(context.Background(), Client)
	if err != nil {
		log.Error().Err(err).Msg("Error getting response")
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Error().Msgf("[%s] Error indexing document", res.Status())
	}
}
