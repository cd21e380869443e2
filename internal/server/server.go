package server

import (
	"log"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/fuseops"
	"github.com/fsgeek/finesse/internal/ipc"
	"github.com/fsgeek/finesse/internal/objtable"
	"github.com/fsgeek/finesse/internal/stats"
)

// Config holds the knobs Server needs that do not come from the wire
// protocol itself.
type Config struct {
	MountPoint string
	StatsPath  string
	Workers    int
	Logger     *log.Logger
	Clock      timeutil.Clock
}

// Server is the top-level daemon object: it owns the registration
// listener, every connected client's dispatcher, the shared object
// table, and the statistics recorder those dispatchers feed.
type Server struct {
	id      uuid.UUID
	cfg     Config
	fs      fuseops.FileSystem
	objects *objtable.Table
	stats   *stats.Recorder
	adapter *Adapter
	native  *NativeHandler

	listener *net.UnixListener

	mu      sync.Mutex
	clients map[string]*clientState
}

// New wires together a Server around fs, the embedded file system every
// FUSE-class call is ultimately served from.
func New(fs fuseops.FileSystem, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "finessed: ", log.LstdFlags)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	objects := objtable.New()
	recorder := stats.New(cfg.Clock)

	s := &Server{
		id:      uuid.New(),
		cfg:     cfg,
		fs:      fs,
		objects: objects,
		stats:   recorder,
		clients: make(map[string]*clientState),
	}
	s.adapter = &Adapter{FS: fs, Objects: objects, ArenaDir: ipc.SocketDir()}
	s.native = &NativeHandler{
		FS:          fs,
		Objects:     objects,
		Stats:       recorder,
		ArenaDir:    ipc.SocketDir(),
		ClientCount: s.clientCount,
		Clock:       cfg.Clock,
	}
	return s
}

func (s *Server) clientCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(len(s.clients))
}

// Serve listens for registrations on cfg.MountPoint's socket and accepts
// clients until Shutdown is called or the listener errors out.
func (s *Server) Serve() error {
	l, err := ipc.Listen(s.cfg.MountPoint)
	if err != nil {
		return err
	}
	s.listener = l

	for {
		conn, err := l.AcceptUnix()
		if err != nil {
			return err
		}
		go s.acceptOne(conn)
	}
}

func (s *Server) acceptOne(conn *net.UnixConn) {
	defer conn.Close()

	req, err := ipc.ReceiveRequest(conn)
	if err != nil {
		s.cfg.Logger.Printf("server: registration: %v", err)
		return
	}

	client, err := newClientState(req, s.adapter, s.native, s.cfg.Workers, s.cfg.Logger)
	if err != nil {
		s.cfg.Logger.Printf("server: registration for %s: %v", req.MountPointString(), err)
		ipc.SendReply(conn, ipc.NewRejectedReply())
		return
	}

	client.Region.SetServerID(s.id)

	s.mu.Lock()
	s.clients[req.ShmPathString()] = client
	s.mu.Unlock()

	if err := ipc.SendReply(conn, ipc.NewAcceptedReply(s.id, client.Region.Size())); err != nil {
		s.cfg.Logger.Printf("server: reply to %s: %v", req.MountPointString(), err)
	}

	go s.monitor(req.ShmPathString(), client)
}

// monitor runs a client's dispatcher to completion and then reaps its
// bookkeeping.
func (s *Server) monitor(key string, c *clientState) {
	go c.run()
	go c.watchLiveness(alivePollInterval)
	<-c.done

	s.mu.Lock()
	delete(s.clients, key)
	s.mu.Unlock()
}

// Shutdown tears down every client region and stops accepting new
// registrations, flushing accumulated statistics to cfg.StatsPath if set.
func (s *Server) Shutdown() error {
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	clients := make([]*clientState, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.close(); err != nil {
			s.cfg.Logger.Printf("server: shutdown: %v", err)
		}
	}

	if s.cfg.StatsPath != "" {
		return s.stats.Flush(s.cfg.StatsPath)
	}
	return nil
}
