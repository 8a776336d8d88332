package mediasoup

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
	"github.com/imdario/mergo"
	"github.com/pion/logging"
)

// WorkerLogLevel is the media worker's own stdout/stderr verbosity
// (spec.md §4.4 "worker settings").
type WorkerLogLevel string

const (
	WorkerLogLevelDebug WorkerLogLevel = "debug"
	WorkerLogLevelWarn  WorkerLogLevel = "warn"
	WorkerLogLevelError WorkerLogLevel = "error"
	WorkerLogLevelNone  WorkerLogLevel = "none"
)

// WorkerLogTag selects which worker subsystems emit debug logging.
type WorkerLogTag string

const (
	WorkerLogTagInfo      WorkerLogTag = "info"
	WorkerLogTagIce       WorkerLogTag = "ice"
	WorkerLogTagDtls      WorkerLogTag = "dtls"
	WorkerLogTagRtp       WorkerLogTag = "rtp"
	WorkerLogTagSrtp      WorkerLogTag = "srtp"
	WorkerLogTagRtcp      WorkerLogTag = "rtcp"
	WorkerLogTagRtx       WorkerLogTag = "rtx"
	WorkerLogTagBwe       WorkerLogTag = "bwe"
	WorkerLogTagScore     WorkerLogTag = "score"
	WorkerLogTagSimulcast WorkerLogTag = "simulcast"
	WorkerLogTagSvc       WorkerLogTag = "svc"
	WorkerLogTagSctp      WorkerLogTag = "sctp"
	WorkerLogTagMessage   WorkerLogTag = "message"
)

// minSupportedWorkerVersion gates createRouter: a worker subprocess that
// reports an older version than this is refused before any Router is
// created on it.
var minSupportedWorkerVersion = version.Must(version.NewVersion("3.6.0"))

// WorkerSettings configures a Worker's subprocess. Zero-value fields are
// filled in from workerSettingsDefaults by mergo.Merge, the way the
// teacher merges TransportOptions against its own defaults.
type WorkerSettings struct {
	// WorkerBin overrides the mediasoup-worker binary path; defaults to
	// $MEDIASOUP_WORKER_BIN.
	WorkerBin string `json:"-"`

	LogLevel WorkerLogLevel `json:"logLevel,omitempty"`
	LogTags  []WorkerLogTag `json:"logTags,omitempty"`

	RtcMinPort uint16 `json:"rtcMinPort,omitempty"`
	RtcMaxPort uint16 `json:"rtcMaxPort,omitempty"`

	DtlsCertificateFile string `json:"dtlsCertificateFile,omitempty"`
	DtlsPrivateKeyFile  string `json:"dtlsPrivateKeyFile,omitempty"`

	AppData interface{} `json:"-"`
}

// InLibraryStartFunc is the embedding hook a host process supplies to run
// the media worker on an in-process goroutine instead of a subprocess
// (spec.md §4.4 "in-library mode"), connected via net.Pipe in place of
// the subprocess's inherited fds. This module does not itself link a C
// mediasoup-worker library, so the caller owns the actual media engine;
// it only needs to read/write the two connections handed to it.
type InLibraryStartFunc func(channelConn, payloadChannelConn net.Conn) error

var workerSettingsDefaults = WorkerSettings{
	LogLevel:   WorkerLogLevelError,
	RtcMinPort: 10000,
	RtcMaxPort: 59999,
}

// WorkerUpdateableSettings is the subset of WorkerSettings that can be
// changed after startup via updateSettings.
type WorkerUpdateableSettings struct {
	LogLevel WorkerLogLevel `json:"logLevel,omitempty"`
	LogTags  []WorkerLogTag `json:"logTags,omitempty"`
}

func (s WorkerSettings) args() []string {
	args := []string{fmt.Sprintf("--logLevel=%s", s.LogLevel)}
	for _, tag := range s.LogTags {
		args = append(args, fmt.Sprintf("--logTags=%s", tag))
	}
	args = append(args, fmt.Sprintf("--rtcMinPort=%d", s.RtcMinPort))
	args = append(args, fmt.Sprintf("--rtcMaxPort=%d", s.RtcMaxPort))
	if s.DtlsCertificateFile != "" && s.DtlsPrivateKeyFile != "" {
		args = append(args,
			"--dtlsCertificateFile="+s.DtlsCertificateFile,
			"--dtlsPrivateKeyFile="+s.DtlsPrivateKeyFile,
		)
	}
	return args
}

// Worker supervises one media worker, either a subprocess or an
// in-library thread, owning its Channel and PayloadChannel (spec.md §4.4).
//
//   - @emits died - (err error)
//   - @emits @success
//   - @emits @failure - (err error)
type Worker struct {
	IEventEmitter
	logger         logr.Logger
	settings       WorkerSettings
	child          *exec.Cmd
	pid            int
	channel        *Channel
	payloadChannel *PayloadChannel
	appData        interface{}
	closed         uint32
	spawnDone      uint32

	mu       sync.Mutex
	routers  map[string]*Router
	servers  map[string]*WebRtcServer

	observer IEventEmitter
}

// NewWorker spawns a media worker subprocess and returns once its
// "running" notification arrives.
func NewWorker(settings WorkerSettings) (*Worker, error) {
	w, err := newWorker(settings)
	if err != nil {
		return nil, err
	}
	return w.start(w.startSubprocess)
}

// NewInLibraryWorker runs the media worker on an in-process goroutine via
// start instead of spawning a subprocess (spec.md §4.4 "in-library mode").
func NewInLibraryWorker(settings WorkerSettings, start InLibraryStartFunc) (*Worker, error) {
	w, err := newWorker(settings)
	if err != nil {
		return nil, err
	}
	return w.start(func() error { return w.startInLibrary(start) })
}

func newWorker(settings WorkerSettings) (*Worker, error) {
	if err := mergo.Merge(&settings, workerSettingsDefaults); err != nil {
		return nil, err
	}
	if settings.WorkerBin == "" {
		settings.WorkerBin = os.Getenv("MEDIASOUP_WORKER_BIN")
	}

	logger := NewLogger("Worker")
	logger.V(1).Info("constructor()")

	return &Worker{
		IEventEmitter: NewEventEmitter(),
		logger:        logger,
		settings:      settings,
		appData:       settings.AppData,
		routers:       make(map[string]*Router),
		servers:       make(map[string]*WebRtcServer),
		observer:      NewEventEmitter(),
	}, nil
}

func (w *Worker) start(launch func() error) (*Worker, error) {
	success := make(chan struct{})
	failure := make(chan error, 1)
	w.Once("@success", func(...interface{}) { close(success) })
	w.Once("@failure", func(args ...interface{}) {
		if len(args) == 1 {
			if err, ok := args[0].(error); ok {
				failure <- err
				return
			}
		}
		failure <- ErrWorkerDied
	})

	if err := launch(); err != nil {
		return nil, err
	}

	select {
	case <-success:
		return w, nil
	case err := <-failure:
		return nil, err
	}
}

func (w *Worker) startSubprocess() error {
	channelLocal, channelChild, err := socketPair()
	if err != nil {
		return err
	}
	payloadLocal, payloadChild, err := socketPair()
	if err != nil {
		return err
	}

	child := exec.Command(w.settings.WorkerBin, w.settings.args()...)
	// fds 3 and 4 in the child, matching the worker protocol's channel
	// and payload-channel fd slots.
	child.ExtraFiles = []*os.File{channelChild, payloadChild}

	stderr, err := child.StderrPipe()
	if err != nil {
		return err
	}
	stdout, err := child.StdoutPipe()
	if err != nil {
		return err
	}
	if err := child.Start(); err != nil {
		return err
	}

	pid := child.Process.Pid
	w.logger.V(1).Info("spawned worker process", "pid", pid, "bin", w.settings.WorkerBin)

	channelConn, err := net.FileConn(channelLocal)
	if err != nil {
		return err
	}
	payloadConn, err := net.FileConn(payloadLocal)
	if err != nil {
		return err
	}
	// The child's fds are inherited copies; our own handles to them must
	// be closed so EOF propagates correctly once the child exits.
	channelChild.Close()
	payloadChild.Close()

	w.child = child
	w.pid = pid
	w.wireChannels(channelConn, payloadConn, strconv.Itoa(pid))

	workerLog := newPionLeveledLogger(NewLogger(fmt.Sprintf("worker[pid:%d]", pid)))
	go streamWorkerLog(stdout, workerLog, false)
	go streamWorkerLog(stderr, workerLog, true)

	go w.wait()

	return nil
}

func (w *Worker) startInLibrary(start InLibraryStartFunc) error {
	channelLocal, channelRemote := net.Pipe()
	payloadLocal, payloadRemote := net.Pipe()

	syntheticId := uuid.NewString()
	w.wireChannels(channelLocal, payloadLocal, syntheticId)

	if err := start(channelRemote, payloadRemote); err != nil {
		return err
	}

	// In-library workers have no process exit code; the caller is
	// expected to close the Worker explicitly (and may SafeEmit "died"
	// itself through Observer() if it detects a fault).
	atomic.StoreUint32(&w.spawnDone, 1)
	w.Emit("@success")
	return nil
}

func (w *Worker) wireChannels(channelConn, payloadConn net.Conn, syntheticId string) {
	w.channel = NewChannel(channelConn, DefaultMaxMessageSize)
	w.payloadChannel = NewPayloadChannel(payloadConn, DefaultMaxMessageSize)

	w.channel.Subscribe(syntheticId, func(event string, data []byte) {
		if atomic.LoadUint32(&w.spawnDone) == 0 && event == "running" {
			atomic.StoreUint32(&w.spawnDone, 1)
			w.logger.V(1).Info("worker process running")
			w.Emit("@success")
		}
	})
}

func (w *Worker) wait() {
	err := w.child.Wait()
	w.child = nil

	code, signal := exitStatus(err)

	if atomic.CompareAndSwapUint32(&w.spawnDone, 0, 1) {
		if code == 42 {
			w.logger.Error(err, "worker process failed due to wrong settings", "pid", w.pid)
			w.Emit("@failure", &WrongSettingsError{Reason: "wrong settings"})
		} else {
			failErr := fmt.Errorf("worker process failed [pid:%d, code:%d, signal:%s]", w.pid, code, signal)
			w.logger.Error(failErr, "worker process failed")
			w.Emit("@failure", failErr)
		}
		return
	}

	diedErr := fmt.Errorf("%w [pid:%d, code:%d, signal:%s]", ErrWorkerDied, w.pid, code, signal)
	w.logger.Error(diedErr, "worker process died unexpectedly")
	w.closeInternal(func() { w.SafeEmit("died", diedErr) })
}

func (w *Worker) Pid() int                      { return w.pid }
func (w *Worker) Closed() bool                  { return atomic.LoadUint32(&w.closed) > 0 }
func (w *Worker) AppData() interface{}          { return w.appData }
func (w *Worker) Observer() IEventEmitter       { return w.observer }

// Close terminates the worker subprocess (or, in-library, simply closes
// the channels) and cascades closure to every Router and WebRtcServer.
func (w *Worker) Close() error {
	return w.closeInternal(nil)
}

func (w *Worker) closeInternal(afterClose func()) error {
	if !atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		return nil
	}
	w.logger.V(1).Info("close()")

	if w.child != nil {
		w.child.Process.Signal(syscall.SIGTERM)
	}

	w.channel.Close()
	w.payloadChannel.Close()

	w.mu.Lock()
	routers := make([]*Router, 0, len(w.routers))
	for _, r := range w.routers {
		routers = append(routers, r)
	}
	servers := make([]*WebRtcServer, 0, len(w.servers))
	for _, s := range w.servers {
		servers = append(servers, s)
	}
	w.routers = make(map[string]*Router)
	w.servers = make(map[string]*WebRtcServer)
	w.mu.Unlock()

	for _, r := range routers {
		r.workerClosed()
	}
	for _, s := range servers {
		s.workerClosed()
	}

	w.observer.SafeEmit("close")
	if afterClose != nil {
		afterClose()
	}
	return nil
}

// GetVersion asks the worker for its build version.
func (w *Worker) GetVersion() (*version.Version, error) {
	resp := w.channel.Request("worker.getVersion", internalData{})
	var raw string
	if err := resp.Unmarshal(&raw); err != nil {
		return nil, err
	}
	return version.NewVersion(raw)
}

// UpdateSettings sends worker.updateSettings.
func (w *Worker) UpdateSettings(settings WorkerUpdateableSettings) error {
	resp := w.channel.Request("worker.updateSettings", internalData{}, H{
		"logLevel": settings.LogLevel,
		"logTags":  settings.LogTags,
	})
	return resp.Err()
}

// CreateRouter creates a Router on this worker, gated by
// minSupportedWorkerVersion (spec.md §4.4 "createRouter").
func (w *Worker) CreateRouter(opts RouterOptions) (*Router, error) {
	if w.Closed() {
		return nil, ErrInvalidState
	}

	if v, err := w.GetVersion(); err == nil && v.LessThan(minSupportedWorkerVersion) {
		return nil, &WrongSettingsError{Reason: fmt.Sprintf("worker version %s older than minimum supported %s", v, minSupportedWorkerVersion)}
	}

	internal := internalData{RouterId: uuid.NewString()}

	resp := w.channel.Request("worker.createRouter", internal, H{"mediaCodecs": opts.MediaCodecs})
	var rtpCapabilities RtpCapabilities
	if err := resp.Unmarshal(&rtpCapabilities); err != nil {
		return nil, err
	}

	router := newRouter(internal, rtpCapabilities, w.channel, w.payloadChannel, opts.AppData)

	w.mu.Lock()
	w.routers[internal.RouterId] = router
	w.mu.Unlock()

	router.On("@close", func(...interface{}) {
		w.mu.Lock()
		delete(w.routers, internal.RouterId)
		w.mu.Unlock()
	})
	w.observer.SafeEmit("newrouter", router)

	return router, nil
}

// CreateWebRtcServer creates a WebRtcServer on this worker (spec.md §4.4).
func (w *Worker) CreateWebRtcServer(opts WebRtcServerOptions) (*WebRtcServer, error) {
	if w.Closed() {
		return nil, ErrInvalidState
	}

	internal := internalData{WebRtcServerId: uuid.NewString()}

	resp := w.channel.Request("worker.createWebRtcServer", internal, H{
		"webRtcServerId": internal.WebRtcServerId,
		"listenInfos":    opts.ListenInfos,
	})
	if err := resp.Err(); err != nil {
		return nil, err
	}

	server := newWebRtcServer(internal, w.channel, opts.AppData)

	w.mu.Lock()
	w.servers[internal.WebRtcServerId] = server
	w.mu.Unlock()

	server.On("@close", func(...interface{}) {
		w.mu.Lock()
		delete(w.servers, internal.WebRtcServerId)
		w.mu.Unlock()
	})
	w.observer.SafeEmit("newwebrtcserver", server)

	return server, nil
}

// socketPair opens one full-duplex AF_UNIX socket pair: local is kept by
// the orchestrator (wrapped as a net.Conn), remote is handed to the
// child process as an inherited fd.
func socketPair() (local, remote *os.File, err error) {
	fds, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, err
	}
	local = os.NewFile(uintptr(fds[0]), "")
	remote = os.NewFile(uintptr(fds[1]), "")
	return local, remote, nil
}

func exitStatus(err error) (code int, signal string) {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 0, ""
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode(), ""
	}
	code = status.ExitStatus()
	if status.Signaled() {
		signal = status.Signal().String()
	} else if status.Stopped() {
		signal = status.StopSignal().String()
	}
	return code, signal
}

func streamWorkerLog(r io.Reader, log logging.LeveledLogger, isStderr bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if isStderr {
			log.Error(line)
		} else {
			log.Debug(line)
		}
	}
}
