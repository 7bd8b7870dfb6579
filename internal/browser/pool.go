package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DefaultImage serves the devtools protocol on port 3000
const DefaultImage = "browserless/chrome:latest"

const devtoolsPort = "3000/tcp"

// Instance is a running Chrome container
type Instance struct {
	ContainerID string
	RunID       string
	DevtoolsURL string
	Port        string
	ProfileDir  string
}

// Pool launches Chrome containers through the local docker daemon
type Pool struct {
	client  *client.Client
	image   string
	archive ProfileArchive
	logger  *slog.Logger
}

func NewPool(image string, logger *slog.Logger) (*Pool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		client: cli,
		image:  image,
		logger: logger.With("component", "chrome-pool"),
	}, nil
}

// KeepProfile makes Launch seed each container's profile from path and
// Release save it back
func (p *Pool) KeepProfile(path string) {
	p.archive = ProfileArchive{Path: path}
}

// Launch starts one Chrome container for a run and waits until its devtools
// endpoint answers.
func (p *Pool) Launch(ctx context.Context, runID string) (*Instance, error) {
	profileDir := filepath.Join(os.TempDir(), "rentharvest-profile", runID)
	if err := os.MkdirAll(profileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	if err := p.archive.Restore(profileDir); err != nil {
		p.logger.Warn("starting with a fresh profile", "err", err)
	}

	containerConfig := &container.Config{
		Image: p.image,
		Labels: map[string]string{
			"run-id":     runID,
			"managed-by": "rentharvest",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=4",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			devtoolsPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			devtoolsPort: []nat.PortBinding{
				{
					HostIP:   "0.0.0.0",
					HostPort: "0",
				},
			},
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: profileDir,
				Target: "/data",
			},
		},
	}

	name := runID
	if len(name) > 8 {
		name = name[:8]
	}
	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "rentharvest-"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports[devtoolsPort]
	if len(bindings) == 0 {
		return nil, fmt.Errorf("container %s exposes no devtools port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if err := p.waitReady(ctx, port); err != nil {
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	p.logger.Info("chrome container ready", "container", resp.ID[:12], "port", port)
	return &Instance{
		ContainerID: resp.ID,
		RunID:       runID,
		DevtoolsURL: fmt.Sprintf("ws://localhost:%s", port),
		Port:        port,
		ProfileDir:  profileDir,
	}, nil
}

// Stop stops and removes a container started by Launch
func (p *Pool) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Release stops inst and, when a profile archive is kept, saves its profile
func (p *Pool) Release(ctx context.Context, inst *Instance) error {
	if err := p.Stop(ctx, inst.ContainerID); err != nil {
		return err
	}
	if p.archive.Path != "" {
		if err := p.archive.Save(inst.ProfileDir); err != nil {
			return err
		}
		p.logger.Info("browser profile saved", "path", p.archive.Path)
	}
	return os.RemoveAll(inst.ProfileDir)
}

// EnsureImage pulls the Chrome image unless it is already present
func (p *Pool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.image {
				return nil
			}
		}
	}

	p.logger.Info("pulling chrome image", "image", p.image)
	reader, err := p.client.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (p *Pool) Close() error {
	return p.client.Close()
}

// waitReady polls /json/version until Chrome answers
func (p *Pool) waitReady(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/json/version", port)
	const maxRetries = 20

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}
