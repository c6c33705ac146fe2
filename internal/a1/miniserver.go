package a1

import (
	"log"
	"sync"

	"github.com/orizon-lang/aida/internal/aida"
	"github.com/orizon-lang/aida/internal/loop"
)

// MiniServer is the reference implementation of MiniServerIface. Property
// changes are announced through the notify signal.
type MiniServer struct {
	MiniServerBase

	mu       sync.Mutex
	vbool    bool
	vi32     int32
	vi64t    int64
	vf64     float64
	vstr     string
	count    CountEnum
	messages []string

	loop *loop.MainLoop
	conn *aida.ServerConnection
}

// NewMiniServer creates a server whose Quit stops l; l may be nil.
func NewMiniServer(l *loop.MainLoop) *MiniServer {
	s := &MiniServer{loop: l}
	s.InitMiniServerBase(s)
	return s
}

// Bind serves s at address and drives the connection from the server's loop.
func (s *MiniServer) Bind(address string) (*aida.ServerConnection, error) {
	conn, err := aida.Bind(address, s)
	if err != nil {
		return nil, err
	}
	if s.loop != nil {
		if _, err := s.loop.Add(loop.ConnectionSource{Conn: conn}); err != nil {
			conn.Close()
			return nil, err
		}
	}
	s.conn = conn
	return conn, nil
}

// Connection returns the connection of the last Bind.
func (s *MiniServer) Connection() *aida.ServerConnection { return s.conn }

func (s *MiniServer) changed(property string) {
	s.Notify().Emit(1, func(pm *aida.ProtoMsg, _ *aida.ServerConnection) {
		pm.AddString(property)
	})
}

func (s *MiniServer) Vbool() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vbool
}

func (s *MiniServer) SetVbool(v bool) {
	s.mu.Lock()
	s.vbool = v
	s.mu.Unlock()
	s.changed("vbool")
}

func (s *MiniServer) Vi32() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vi32
}

func (s *MiniServer) SetVi32(v int32) {
	s.mu.Lock()
	s.vi32 = v
	s.mu.Unlock()
	s.changed("vi32")
}

func (s *MiniServer) Vi64t() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vi64t
}

func (s *MiniServer) SetVi64t(v int64) {
	s.mu.Lock()
	s.vi64t = v
	s.mu.Unlock()
	s.changed("vi64t")
}

func (s *MiniServer) Vf64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vf64
}

func (s *MiniServer) SetVf64(v float64) {
	s.mu.Lock()
	s.vf64 = v
	s.mu.Unlock()
	s.changed("vf64")
}

func (s *MiniServer) Vstr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vstr
}

func (s *MiniServer) SetVstr(v string) {
	s.mu.Lock()
	s.vstr = v
	s.mu.Unlock()
	s.changed("vstr")
}

func (s *MiniServer) Count() CountEnum {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *MiniServer) SetCount(v CountEnum) {
	s.mu.Lock()
	s.count = v
	s.mu.Unlock()
	s.changed("count")
}

// Message logs what and keeps it for Messages.
func (s *MiniServer) Message(what string) {
	s.mu.Lock()
	s.messages = append(s.messages, what)
	s.mu.Unlock()
	log.Printf("[a1] %s", what)
}

// Messages returns everything received through Message.
func (s *MiniServer) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// Quit stops the loop; remote references are not cleared first.
func (s *MiniServer) Quit() {
	if s.loop != nil {
		s.loop.Quit()
	}
}

func (s *MiniServer) Echo(v string) string { return v }

// CreateChild returns a fresh MiniServer sharing the loop of s.
func (s *MiniServer) CreateChild() MiniServerIface { return NewMiniServer(s.loop) }
