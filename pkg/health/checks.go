package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/caravel-ops/caravel/pkg/transports/ssh"
)

// Params assembles the builtin check list for one target.
type Params struct {
	// Target is the host address.
	Target string

	// Runner executes remote commands for the on-target checks.
	Runner ssh.Runner

	// Service is the runtime service expected active (e.g. "docker").
	Service string

	// MinWorkloads is the minimum running workload process count.
	MinWorkloads int

	// HTTPPort is the externally observable service port.
	HTTPPort int

	// LivenessURL is the application-defined liveness endpoint.
	LivenessURL string

	// Mount is the filesystem checked for disk utilization.
	Mount string

	// HTTPClient is used for the response and liveness checks. Defaults
	// to a short-timeout client.
	HTTPClient *http.Client
}

// BuiltinChecks returns the fixed eight-check list in report order:
// reachability, remote access, runtime service, workload count, HTTP
// response, liveness probe, disk utilization, memory utilization.
func BuiltinChecks(p Params) []Check {
	httpClient := p.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return []Check{
		&reachabilityCheck{target: p.Target, port: 22},
		&remoteAccessCheck{runner: p.Runner},
		&serviceCheck{runner: p.Runner, service: p.Service},
		&workloadCheck{runner: p.Runner, min: p.MinWorkloads},
		&httpResponseCheck{client: httpClient, url: fmt.Sprintf("http://%s:%d/", p.Target, p.HTTPPort)},
		&livenessCheck{client: httpClient, url: p.LivenessURL},
		&diskCheck{runner: p.Runner, mount: p.Mount},
		&memoryCheck{runner: p.Runner},
	}
}

// reachabilityCheck verifies the target accepts TCP connections on the SSH
// port.
type reachabilityCheck struct {
	target string
	port   int
}

func (c *reachabilityCheck) Name() string { return "reachability" }

func (c *reachabilityCheck) Run(ctx context.Context) Result {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", c.target, c.port))
	if err != nil {
		return Result{Check: c.Name(), Passed: false, Detail: fmt.Sprintf("tcp connect failed: %v", err)}
	}
	_ = conn.Close()
	return Result{Check: c.Name(), Passed: true, Detail: fmt.Sprintf("port %d accepting connections", c.port)}
}

// remoteAccessCheck verifies an authenticated command can run.
type remoteAccessCheck struct {
	runner ssh.Runner
}

func (c *remoteAccessCheck) Name() string { return "remote-access" }

func (c *remoteAccessCheck) Run(ctx context.Context) Result {
	if err := c.runner.Probe(ctx); err != nil {
		return Result{Check: c.Name(), Passed: false, Detail: fmt.Sprintf("probe failed: %v", err)}
	}
	return Result{Check: c.Name(), Passed: true, Detail: "remote command execution available"}
}

// serviceCheck verifies the container runtime service is active.
type serviceCheck struct {
	runner  ssh.Runner
	service string
}

func (c *serviceCheck) Name() string { return "runtime-service" }

func (c *serviceCheck) Run(ctx context.Context) Result {
	svc := c.service
	if svc == "" {
		svc = "docker"
	}
	stdout, _, err := c.runner.Run(ctx, fmt.Sprintf("systemctl is-active %s", svc))
	if err != nil {
		return Result{Check: c.Name(), Passed: false, Detail: fmt.Sprintf("%s is not active: %v", svc, err)}
	}
	return Result{Check: c.Name(), Passed: true, Detail: fmt.Sprintf("%s is %s", svc, stdout)}
}

// workloadCheck verifies the expected number of workload processes is
// running.
type workloadCheck struct {
	runner ssh.Runner
	min    int
}

func (c *workloadCheck) Name() string { return "workload-count" }

func (c *workloadCheck) Run(ctx context.Context) Result {
	stdout, _, err := c.runner.Run(ctx, "docker ps -q | wc -l")
	if err != nil {
		return Result{Check: c.Name(), Passed: false, Detail: fmt.Sprintf("cannot count workloads: %v", err)}
	}
	count, err := strconv.Atoi(strings.TrimSpace(stdout))
	if err != nil {
		return Result{Check: c.Name(), Passed: false, Detail: fmt.Sprintf("unexpected workload count output %q", stdout)}
	}
	if count < c.min {
		return Result{Check: c.Name(), Passed: false, Detail: fmt.Sprintf("%d workloads running, expected at least %d", count, c.min)}
	}
	return Result{Check: c.Name(), Passed: true, Detail: fmt.Sprintf("%d workloads running", count)}
}

// httpResponseCheck verifies the service answers over HTTP from the
// outside.
type httpResponseCheck struct {
	client *http.Client
	url    string
}

func (c *httpResponseCheck) Name() string { return "http-response" }

func (c *httpResponseCheck) Run(ctx context.Context) Result {
	return probeHTTP(ctx, c.Name(), c.client, c.url)
}

// livenessCheck hits the application-defined liveness endpoint.
type livenessCheck struct {
	client *http.Client
	url    string
}

func (c *livenessCheck) Name() string { return "app-liveness" }

func (c *livenessCheck) Run(ctx context.Context) Result {
	return probeHTTP(ctx, c.Name(), c.client, c.url)
}

// probeHTTP issues a GET and treats any 2xx/3xx answer as alive.
func probeHTTP(ctx context.Context, name string, client *http.Client, url string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Check: name, Passed: false, Detail: fmt.Sprintf("bad url %s: %v", url, err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Check: name, Passed: false, Detail: fmt.Sprintf("GET %s failed: %v", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{Check: name, Passed: false, Detail: fmt.Sprintf("GET %s returned %s", url, resp.Status)}
	}
	return Result{Check: name, Passed: true, Detail: fmt.Sprintf("GET %s returned %s", url, resp.Status)}
}

// diskCheck fails when the mount's utilization reaches the fixed threshold.
type diskCheck struct {
	runner ssh.Runner
	mount  string
}

func (c *diskCheck) Name() string { return "disk-utilization" }

func (c *diskCheck) Run(ctx context.Context) Result {
	mount := c.mount
	if mount == "" {
		mount = "/"
	}
	stdout, _, err := c.runner.Run(ctx, fmt.Sprintf("df --output=pcent %s | tail -1 | tr -dc '0-9'", mount))
	if err != nil {
		return Result{Check: c.Name(), Passed: false, Detail: fmt.Sprintf("cannot read disk utilization: %v", err)}
	}
	return thresholdResult(c.Name(), fmt.Sprintf("disk %s", mount), stdout)
}

// memoryCheck fails when memory utilization reaches the fixed threshold.
type memoryCheck struct {
	runner ssh.Runner
}

func (c *memoryCheck) Name() string { return "memory-utilization" }

func (c *memoryCheck) Run(ctx context.Context) Result {
	stdout, _, err := c.runner.Run(ctx, "free | awk '/^Mem:/ {printf \"%d\", $3/$2*100}'")
	if err != nil {
		return Result{Check: c.Name(), Passed: false, Detail: fmt.Sprintf("cannot read memory utilization: %v", err)}
	}
	return thresholdResult(c.Name(), "memory", stdout)
}

// thresholdResult interprets a percentage string against the fixed
// utilization threshold.
func thresholdResult(name, subject, raw string) Result {
	pct, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return Result{Check: name, Passed: false, Detail: fmt.Sprintf("unexpected utilization output %q", raw)}
	}
	if pct >= UtilizationThreshold {
		return Result{
			Check:  name,
			Passed: false,
			Detail: fmt.Sprintf("%s at %d%% (threshold %d%%)", subject, pct, UtilizationThreshold),
		}
	}
	return Result{Check: name, Passed: true, Detail: fmt.Sprintf("%s at %d%%", subject, pct)}
}
