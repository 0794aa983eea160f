// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package sock implements §4.6's status socket: a AF_UNIX stream listener
// that, for every connection accepted, writes one status document and
// closes -- no request is read, no protocol is negotiated. This is
// deliberately not a request/response-over-HTTP socket, because the status
// socket has nothing to dispatch on: connecting IS the request.
package sock

import (
	"fmt"
	"net"
	"os"
)

// Server accepts connections on a unix socket and hands each one to a
// Dump function that produces the bytes to write before the connection is
// closed.
type Server struct {
	path     string
	listener *net.UnixListener
	dump     func() ([]byte, error)
}

// NewServer binds path, removing any stale socket file left behind by a
// previous run first (§4.6: the socket is recreated fresh on every start).
func NewServer(path string, dump func() ([]byte, error)) (*Server, error) {
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("sock: resolve %s: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("sock: listen %s: %w", path, err)
	}
	return &Server{path: path, listener: ln, dump: dump}, nil
}

// Fd returns the listener's file descriptor, for registering with the
// event loop's epoll instance. The caller must not close the returned fd
// directly; use Close.
func (s *Server) Fd() (uintptr, error) {
	f, err := s.listener.File()
	if err != nil {
		return 0, err
	}
	return f.Fd(), nil
}

// AcceptOne accepts a single pending connection, writes the current dump,
// and closes it. Called by the event loop once epoll reports the listener
// fd readable; never blocks longer than the accept itself, since the
// listener fd is only polled when already readable.
func (s *Server) AcceptOne() error {
	conn, err := s.listener.AcceptUnix()
	if err != nil {
		return err
	}
	defer conn.Close()

	body, err := s.dump()
	if err != nil {
		return err
	}
	_, err = conn.Write(body)
	return err
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}
