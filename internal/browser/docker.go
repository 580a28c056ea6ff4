package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const browserPort = "3000/tcp"

// DockerEngine runs the browser inside a browserless/chrome container and
// drives it over the container's CDP websocket
type DockerEngine struct {
	client *client.Client
	image  string
	logger *zap.Logger
}

// NewDockerEngine creates an engine using the docker daemon from the environment
func NewDockerEngine(imageRef string, logger *zap.Logger) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerEngine(cli, imageRef, logger), nil
}

func newDockerEngine(cli *client.Client, imageRef string, logger *zap.Logger) *DockerEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerEngine{
		client: cli,
		image:  imageRef,
		logger: logger,
	}
}

// Launch starts a container, waits for Chrome to answer and connects to it
func (e *DockerEngine) Launch(ctx context.Context) (Instance, error) {
	if err := e.EnsureImage(ctx); err != nil {
		return nil, &LaunchError{Err: err}
	}

	containerID, port, err := e.startContainer(ctx)
	if err != nil {
		return nil, &LaunchError{Err: err}
	}

	stop := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return e.StopBrowser(stopCtx, containerID)
	}

	if err := e.waitForBrowserReady(ctx, port); err != nil {
		if stopErr := stop(); stopErr != nil {
			e.logger.Warn("failed to stop container", zap.String("container", containerID), zap.Error(stopErr))
		}
		return nil, &LaunchError{Err: fmt.Errorf("browser failed to become ready: %w", err)}
	}

	connectURL := fmt.Sprintf("ws://localhost:%s", port)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), connectURL)
	instance, err := startInstance(allocCtx, allocCancel, connectURL, stop, e.logger)
	if err != nil {
		if stopErr := stop(); stopErr != nil {
			e.logger.Warn("failed to stop container", zap.String("container", containerID), zap.Error(stopErr))
		}
		return nil, &LaunchError{Err: err}
	}

	e.logger.Info("launched browser container",
		zap.String("container", shortID(containerID)),
		zap.String("connect_url", connectURL),
	)
	return instance, nil
}

func (e *DockerEngine) startContainer(ctx context.Context) (string, string, error) {
	name := fmt.Sprintf("reelgrab-%s", uuid.New().String()[:8])

	containerConfig := &container.Config{
		Image: e.image,
		Labels: map[string]string{
			"managed-by": "reelgrab",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			browserPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			browserPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		AutoRemove: false,
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return "", "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		e.discardContainer(resp.ID)
		return "", "", fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := e.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		e.discardContainer(resp.ID)
		return "", "", fmt.Errorf("failed to inspect container: %w", err)
	}

	var bindings []nat.PortBinding
	if inspect.NetworkSettings != nil {
		bindings = inspect.NetworkSettings.Ports[browserPort]
	}
	if len(bindings) == 0 {
		e.discardContainer(resp.ID)
		return "", "", fmt.Errorf("container %s exposes no port for %s", shortID(resp.ID), browserPort)
	}

	return resp.ID, bindings[0].HostPort, nil
}

// discardContainer force-removes a container that never became usable
func (e *DockerEngine) discardContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Warn("failed to remove container", zap.String("container", shortID(containerID)), zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// StopBrowser stops and removes a container
func (e *DockerEngine) StopBrowser(ctx context.Context, containerID string) error {
	timeout := 10
	if err := e.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// EnsureImage pulls the browser image unless it is already present
func (e *DockerEngine) EnsureImage(ctx context.Context) error {
	images, err := e.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == e.image {
				return nil
			}
		}
	}

	e.logger.Info("pulling browser image", zap.String("image", e.image))
	reader, err := e.client.ImagePull(ctx, e.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the docker client
func (e *DockerEngine) Close() error {
	return e.client.Close()
}

// waitForBrowserReady polls the /json/version endpoint until Chrome answers
func (e *DockerEngine) waitForBrowserReady(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/json/version", port)
	maxRetries := 20 // 10 seconds total

	httpClient := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}
