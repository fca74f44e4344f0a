// Copyright © 2025 DBDiag Agents Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logingest

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
)

const (
	httpDeadline  = 30 * time.Second
	maxTotalBytes = 10 * 1024 * 1024
)

// RemoteClient is the typed HTTP client for the managed-service
// observability endpoint, shared by the log download path and the
// incident-triage workflow's metrics/provisioning lookups.
type RemoteClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     logger.Logger
}

// NewRemoteClient builds a client; baseURL defaults to
// https://api.skysql.com when empty. An empty apiKey makes every call
// fail fast with NotConfigured.
func NewRemoteClient(baseURL, apiKey string) *RemoteClient {
	if baseURL == "" {
		baseURL = "https://api.skysql.com"
	}
	return &RemoteClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: httpDeadline},
		log:     logger.NewLogger("logingest-remote"),
	}
}

type logEntryMeta struct {
	DownloadURL string `json:"downloadUrl"`
	Size        int64  `json:"size"`
	ServiceID   string `json:"serviceId"`
}

type logListResponse struct {
	Entries []logEntryMeta `json:"entries"`
}

// FetchRemote downloads the error log for serviceID over [fromTime,
// toTime], decompresses each entry, and concatenates them into a single
// buffer capped at 10 MiB total.
func (c *RemoteClient) FetchRemote(ctx context.Context, serviceID string, fromTime, toTime time.Time) ([]byte, errs.DBDiagError) {
	if c.apiKey == "" {
		return nil, errs.New(errs.KindNotConfigured, "SKYSQL_API_KEY is not set")
	}

	url := fmt.Sprintf("%s/observability/v2/logs?logType=error-log&fromDate=%s&toDate=%s",
		c.baseURL, fromTime.UTC().Format(time.RFC3339), toTime.UTC().Format(time.RFC3339))

	var listing logListResponse
	if err := c.getJSON(ctx, url, &listing); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	total := 0
	for _, entry := range listing.Entries {
		if entry.ServiceID != "" && serviceID != "" && entry.ServiceID != serviceID {
			continue
		}
		data, err := c.download(ctx, entry.DownloadURL)
		if err != nil {
			return nil, err
		}
		total += len(data)
		if total > maxTotalBytes {
			return nil, errs.New(errs.KindTooLarge, "remote log download exceeded 10 MiB cap")
		}
		decompressed, derr := decompress(data)
		if derr != nil {
			c.log.Warnf("could not decompress log entry from %s, using raw bytes: %v", entry.DownloadURL, derr)
			decompressed = data
		}
		out.Write(decompressed)
	}
	return out.Bytes(), nil
}

func (c *RemoteClient) getJSON(ctx context.Context, url string, dest any) errs.DBDiagError {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if jerr := json.Unmarshal(body, dest); jerr != nil {
		return errs.Wrap(errs.KindBackendError, "decoding observability API response", jerr)
	}
	return nil
}

func (c *RemoteClient) get(ctx context.Context, url string) ([]byte, errs.DBDiagError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendError, "building request", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.New(errs.KindTimeout, "observability API call timed out")
		}
		return nil, errs.Wrap(errs.KindBackendError, "calling observability API", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, errs.New(errs.KindUnauthorized, "observability API rejected credentials")
	case http.StatusForbidden:
		return nil, errs.New(errs.KindForbidden, "observability API denied access")
	}
	if resp.StatusCode >= 300 {
		return nil, errs.WithCode(errs.New(errs.KindBackendError, "observability API error"), resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxTotalBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendError, "reading response body", err)
	}
	if len(body) > maxTotalBytes {
		return nil, errs.New(errs.KindTooLarge, "observability API response exceeded 10 MiB cap")
	}
	return body, nil
}

func (c *RemoteClient) download(ctx context.Context, url string) ([]byte, errs.DBDiagError) {
	return c.get(ctx, url)
}

// decompress picks a decompressor by magic bytes rather than trusting
// the (possibly opaque, signed) download URL's path extension.
func decompress(data []byte) ([]byte, error) {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 0x03 && data[3] == 0x04:
		return unzipFirstEntry(data)
	default:
		return data, nil
	}
}

func unzipFirstEntry(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(&out, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// ProvisioningInfo is the result of the provisioning lookup used by the
// incident-triage workflow to contextualize replica counts.
type ProvisioningInfo struct {
	Region       string `json:"region"`
	Topology     string `json:"topology"`
	ReplicaCount int    `json:"replica_count"`
}

// Provisioning fetches service topology metadata.
func (c *RemoteClient) Provisioning(ctx context.Context, serviceID string) (*ProvisioningInfo, errs.DBDiagError) {
	if c.apiKey == "" {
		return nil, errs.New(errs.KindNotConfigured, "SKYSQL_API_KEY is not set")
	}
	url := fmt.Sprintf("%s/provisioning/v1/services/%s", c.baseURL, serviceID)
	var info ProvisioningInfo
	if err := c.getJSON(ctx, url, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MetricSample is one timestamped numeric sample from the metrics API.
type MetricSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Metric is one of "cpu", "disk_data", "disk_logs".
type Metric string

const (
	MetricCPU      Metric = "cpu"
	MetricDiskData Metric = "disk_data"
	MetricDiskLogs Metric = "disk_logs"
)

// Metrics fetches time-stamped samples for one metric over a time range.
func (c *RemoteClient) Metrics(ctx context.Context, serviceID string, metric Metric, from, to time.Time) ([]MetricSample, errs.DBDiagError) {
	if c.apiKey == "" {
		return nil, errs.New(errs.KindNotConfigured, "SKYSQL_API_KEY is not set")
	}
	url := fmt.Sprintf("%s/observability/v1/metrics/%s?metric=%s&from=%s&to=%s",
		c.baseURL, serviceID, metric, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	var resp struct {
		Samples []MetricSample `json:"samples"`
	}
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	return resp.Samples, nil
}
