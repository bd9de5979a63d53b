package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/calehh/oracle-node/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/hashicorp/go-retryablehttp"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrScoringUnavailable = errors.New("scoring service unavailable")
	ErrBadScore           = errors.New("malformed score response")
)

// Client scores a question before anyone answers it. Scores are advisory
// and never gate a request.
type Client interface {
	Score(ctx context.Context, question, context string) (*types.RiskScore, error)
}

var _ Client = &HTTPClient{}
var _ Client = &MockClient{}

type scoreRequest struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

type scoreResponse struct {
	Score         int64           `json:"score"`
	Heatmap       json.RawMessage `json:"heatmap"`
	FinalDecision string          `json:"final_decision"`
}

type HTTPClient struct {
	Url    string
	logger cmtlog.Logger
	client *retryablehttp.Client
}

func NewHTTPClient(baseUrl string, retryMax int, timeout time.Duration, logger cmtlog.Logger) *HTTPClient {
	cli := retryablehttp.NewClient()
	cli.RetryMax = retryMax
	cli.RetryWaitMin = 100 * time.Millisecond
	cli.RetryWaitMax = 2 * time.Second
	cli.HTTPClient.Timeout = timeout
	cli.Logger = nil
	return &HTTPClient{
		Url:    baseUrl,
		logger: logger.With("module", "scoring"),
		client: cli,
	}
}

func (c *HTTPClient) Score(ctx context.Context, question, questionContext string) (*types.RiskScore, error) {
	scoreUrl, err := url.JoinPath(c.Url, "score")
	if err != nil {
		c.logger.Error("join url fail", "err", err)
		return nil, err
	}
	body, err := json.Marshal(scoreRequest{Question: question, Context: questionContext})
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, scoreUrl, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("post score fail", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}
	defer res.Body.Close()
	buf, err := io.ReadAll(res.Body)
	if err != nil {
		c.logger.Error("read response body fail", "err", err)
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrScoringUnavailable, res.StatusCode, bytes.TrimSpace(buf))
	}
	var out scoreResponse
	if err = json.Unmarshal(buf, &out); err != nil {
		c.logger.Error("unmarshal response body fail", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrBadScore, err)
	}
	score, err := parseScore(out)
	if err != nil {
		return nil, err
	}
	c.logger.Info("scored question", "score", score.Score, "decision", score.FinalDecision)
	return score, nil
}

func parseScore(out scoreResponse) (*types.RiskScore, error) {
	decision := types.Decision(out.FinalDecision)
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: unknown final_decision %q", ErrBadScore, out.FinalDecision)
	}
	score := &types.RiskScore{Score: out.Score, FinalDecision: decision}
	if len(out.Heatmap) == 0 || string(out.Heatmap) == "null" {
		return score, nil
	}
	heatmap := new(structpb.Struct)
	if err := protojson.Unmarshal(out.Heatmap, heatmap); err != nil {
		return nil, fmt.Errorf("%w: heatmap must be an object: %v", ErrBadScore, err)
	}
	score.Heatmap = heatmap.AsMap()
	return score, nil
}
