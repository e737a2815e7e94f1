// Copyright 2026 VQ Technologies Ltd
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

// Package kube adjusts the pod-deletion-cost annotation so the scheduler
// prefers to evict idle workers over ones holding a lease. Purely a hint:
// every failure here is logged and swallowed.
package kube

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Deletion-cost values: busy workers are expensive to kill, idle ones cheap.
const (
	CostBusy = 1000
	CostIdle = -1000
)

// CostHinter tells the host orchestrator how reluctant it should be to
// terminate this process. Implementations must be best-effort.
type CostHinter interface {
	// SetDeletionCost applies the hint; the return value only says whether
	// it took effect.
	SetDeletionCost(ctx context.Context, cost int) bool
}

// NopHinter is used outside a cluster and in tests.
type NopHinter struct{}

func (NopHinter) SetDeletionCost(context.Context, int) bool { return false }

const (
	tokenPath  = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	caCertPath = "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"
)

// PodPatcher patches this pod's deletion-cost annotation through the
// Kubernetes API using the mounted service-account credentials.
type PodPatcher struct {
	podName   string
	namespace string
	apiHost   string
	apiPort   string
	httpc     *http.Client
}

// NewPodPatcher returns a working patcher, or nil when the process does not
// appear to run inside a pod (POD_NAME unset). Callers should fall back to
// NopHinter on nil.
func NewPodPatcher() *PodPatcher {
	podName := os.Getenv("POD_NAME")
	host := os.Getenv("KUBERNETES_SERVICE_HOST")
	port := os.Getenv("KUBERNETES_SERVICE_PORT")
	if podName == "" || host == "" || port == "" {
		slog.Info("not running in a k8s pod, deletion cost hints disabled")
		return nil
	}

	namespace := os.Getenv("POD_NAMESPACE")
	if namespace == "" {
		namespace = "default"
	}

	httpc := &http.Client{Timeout: 10 * time.Second}
	if caCert, err := os.ReadFile(caCertPath); err == nil {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(caCert)
		httpc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		}
	} else {
		slog.Warn("kubernetes CA certificate not readable", "error", err)
	}

	return &PodPatcher{
		podName:   podName,
		namespace: namespace,
		apiHost:   host,
		apiPort:   port,
		httpc:     httpc,
	}
}

func (p *PodPatcher) SetDeletionCost(ctx context.Context, cost int) bool {
	token, err := os.ReadFile(tokenPath)
	if err != nil {
		slog.Warn("kubernetes token file not found", "error", err)
		return false
	}

	patch := []map[string]any{
		{
			"op":   "replace",
			"path": "/metadata/annotations",
			"value": map[string]string{
				"controller.kubernetes.io/pod-deletion-cost": strconv.Itoa(cost),
			},
		},
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return false
	}

	u := fmt.Sprintf("https://%s:%s/api/v1/namespaces/%s/pods/%s",
		p.apiHost, p.apiPort, p.namespace, p.podName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json-patch+json")
	req.Header.Set("Authorization", "Bearer "+string(token))

	res, err := p.httpc.Do(req)
	if err != nil {
		slog.Warn("pod deletion cost patch failed", "error", err)
		return false
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		slog.Warn("pod deletion cost patch rejected", "status", res.StatusCode)
		return false
	}

	slog.Debug("pod deletion cost updated", "cost", cost)
	return true
}
