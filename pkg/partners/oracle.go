package partners

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Ramsey-B/fern/pkg/availability"
	"github.com/Ramsey-B/fern/pkg/httpclient"
)

const atlasNoData = "NO_DATA_FOR_SLOT"

// AtlasOracle queries atlas' availability endpoint.
type AtlasOracle struct {
	client  *httpclient.Client
	baseURL string
	headers map[string]string
}

func NewAtlasOracle(client *httpclient.Client, baseURL string, headers map[string]string) *AtlasOracle {
	return &AtlasOracle{
		client:  client,
		baseURL: baseURL,
		headers: headers,
	}
}

type atlasAvailability struct {
	Categories []availability.CategoryStatus `json:"categories"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a atlasAvailability) result() (*availability.Response, error) {
	if a.Error != nil {
		if a.Error.Code == atlasNoData {
			return nil, availability.ErrNoData
		}
		return nil, fmt.Errorf("atlas availability error %s: %s", a.Error.Code, a.Error.Message)
	}
	return &availability.Response{Categories: a.Categories}, nil
}

func (o *AtlasOracle) Query(ctx context.Context, q availability.Query) (*availability.Response, error) {
	params := url.Values{}
	params.Set("station", q.StationExternalID)
	params.Set("category", q.Category)
	params.Set("from", q.From.Format(time.DateOnly))
	params.Set("to", q.To.Format(time.DateOnly))

	var body atlasAvailability
	err := o.client.GetJSON(ctx, joinURL(o.baseURL, "/availability")+"?"+params.Encode(), o.headers, &body)

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		// error payloads come back with 4xx statuses
		var payload atlasAvailability
		if json.Unmarshal(statusErr.Body, &payload) == nil && payload.Error != nil {
			return payload.result()
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return body.result()
}
