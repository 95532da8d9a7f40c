// Command bufferpoolctl runs a line-oriented TCP server exposing a buffer
// pool manager's operations directly to clients, for manual testing and
// demonstration without a full query layer on top.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"

	"github.com/sushant-115/gojodb/core/write_engine/bufferpool"
	"github.com/sushant-115/gojodb/pkg/config"
	"github.com/sushant-115/gojodb/pkg/logger"
	"github.com/sushant-115/gojodb/pkg/telemetry"
)

var (
	configPath = flag.String("config", "", "path to a YAML config file; defaults are used if omitted")
	listenAddr = flag.String("listen", "localhost:9090", "address to listen for client connections on")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			panic(fmt.Sprintf("FATAL: loading config: %v", err))
		}
		cfg = loaded
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("FATAL: creating logger: %v", err))
	}
	defer log.Sync()

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("creating telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	dm, err := flushmanager.NewDiskManager(cfg.DBFile, cfg.PageSize, flushmanager.WithCompression(cfg.CompressionType()))
	if err != nil {
		log.Fatal("creating disk manager", zap.Error(err))
	}
	defer dm.Close()

	bpm, err := bufferpool.NewBufferPoolManager(cfg.PoolSize, dm, log, tel.Meter)
	if err != nil {
		log.Fatal("creating buffer pool manager", zap.Error(err))
	}
	defer bpm.Close()

	listener, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatal("listening", zap.String("addr", *listenAddr), zap.Error(err))
	}
	defer listener.Close()

	log.Info("bufferpoolctl listening",
		zap.String("addr", *listenAddr),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("page_size", cfg.PageSize),
		zap.String("db_file", cfg.DBFile),
	)

	srv := &server{bpm: bpm, log: log}
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Error("accepting connection", zap.Error(err))
			continue
		}
		go srv.handleConnection(conn)
	}
}

type server struct {
	bpm *bufferpool.BufferPoolManager
	log *zap.Logger
}

// handleConnection services one client over a newline-delimited text
// protocol. Commands:
//
//	NEW                     allocate and pin a fresh page
//	FETCH <pageID>          pin and read a page
//	WRITE <pageID> <text>   fetch a page, copy text over the start of its data, unpin it dirty
//	UNPIN <pageID> <dirty>  unpin a page (dirty is "true" or "false")
//	FLUSH <pageID>          write a page back to disk if dirty
//	FLUSHALL                write back every dirty page
//	DELETE <pageID>         remove a page and free its identifier
//	STATS                   report pool size and page size
func (s *server) handleConnection(conn net.Conn) {
	clientID := uuid.NewString()
	defer conn.Close()
	s.log.Info("client connected", zap.String("client_id", clientID), zap.String("remote_addr", conn.RemoteAddr().String()))

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.log.Warn("reading from client", zap.String("client_id", clientID), zap.Error(err))
			}
			s.log.Info("client disconnected", zap.String("client_id", clientID))
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		reply := s.dispatch(line)
		if _, err := conn.Write([]byte(reply + "\n")); err != nil {
			s.log.Warn("writing to client", zap.String("client_id", clientID), zap.Error(err))
			return
		}
	}
}

func (s *server) dispatch(line string) string {
	fields := strings.Fields(line)
	command := strings.ToUpper(fields[0])
	args := fields[1:]

	switch command {
	case "NEW":
		page, pageID, err := s.bpm.NewPage()
		if err != nil {
			return "ERROR " + err.Error()
		}
		return fmt.Sprintf("OK %d pin=%d", pageID, page.GetPinCount())

	case "FETCH":
		pageID, err := parsePageID(args)
		if err != nil {
			return "ERROR " + err.Error()
		}
		page, err := s.bpm.FetchPage(pageID)
		if err != nil {
			return "ERROR " + err.Error()
		}
		if page == nil {
			return "NOT_FOUND"
		}
		return fmt.Sprintf("OK %q", strings.TrimRight(string(page.GetData()), "\x00"))

	case "WRITE":
		if len(args) < 2 {
			return "ERROR WRITE requires a page id and content"
		}
		pageID, err := parsePageIDString(args[0])
		if err != nil {
			return "ERROR " + err.Error()
		}
		page, err := s.bpm.FetchPage(pageID)
		if err != nil {
			return "ERROR " + err.Error()
		}
		if page == nil {
			return "NOT_FOUND"
		}
		content := []byte(strings.Join(args[1:], " "))
		if len(content) > len(page.GetData()) {
			s.bpm.UnpinPage(pageID, false)
			return fmt.Sprintf("ERROR content exceeds page size %d", s.bpm.PageSize())
		}
		page.SetData(content)
		s.bpm.UnpinPage(pageID, true)
		return "OK"

	case "UNPIN":
		if len(args) < 2 {
			return "ERROR UNPIN requires a page id and dirty flag"
		}
		pageID, err := parsePageIDString(args[0])
		if err != nil {
			return "ERROR " + err.Error()
		}
		dirty, err := strconv.ParseBool(args[1])
		if err != nil {
			return "ERROR invalid dirty flag: " + args[1]
		}
		if !s.bpm.UnpinPage(pageID, dirty) {
			return "ERROR page not resident or already unpinned"
		}
		return "OK"

	case "FLUSH":
		pageID, err := parsePageID(args)
		if err != nil {
			return "ERROR " + err.Error()
		}
		flushed, err := s.bpm.FlushPage(pageID)
		if err != nil {
			return "ERROR " + err.Error()
		}
		return fmt.Sprintf("OK flushed=%t", flushed)

	case "FLUSHALL":
		if err := s.bpm.FlushAllPages(); err != nil {
			return "ERROR " + err.Error()
		}
		return "OK"

	case "DELETE":
		pageID, err := parsePageID(args)
		if err != nil {
			return "ERROR " + err.Error()
		}
		deleted, err := s.bpm.DeletePage(pageID)
		if err != nil {
			return "ERROR " + err.Error()
		}
		return fmt.Sprintf("OK deleted=%t", deleted)

	case "STATS":
		return fmt.Sprintf("OK pool_size=%d page_size=%d", s.bpm.PoolSize(), s.bpm.PageSize())

	default:
		return "ERROR unknown command: " + command
	}
}

func parsePageID(args []string) (pagemanager.PageID, error) {
	if len(args) < 1 {
		return pagemanager.InvalidPageID, fmt.Errorf("command requires a page id")
	}
	return parsePageIDString(args[0])
}

func parsePageIDString(raw string) (pagemanager.PageID, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return pagemanager.InvalidPageID, fmt.Errorf("invalid page id %q: %w", raw, err)
	}
	return pagemanager.PageID(id), nil
}
