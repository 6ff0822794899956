package main

import (
	"net/http"
	"sync/atomic"
)

type handlerGeneration struct {
	handler    http.Handler
	generation int
}

// handlerSwapper serves the most recently installed handler. serve swaps
// in a rebuilt panel when a settings reload changes the rules.
type handlerSwapper struct {
	current atomic.Pointer[handlerGeneration]
}

func newHandlerSwapper(h http.Handler) *handlerSwapper {
	s := &handlerSwapper{}
	s.current.Store(&handlerGeneration{handler: h})
	return s
}

func (s *handlerSwapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.current.Load().handler.ServeHTTP(w, r)
}

// Swap installs h for subsequent requests and returns its generation.
// Requests already in flight finish on the handler they started with.
func (s *handlerSwapper) Swap(h http.Handler) int {
	for {
		old := s.current.Load()
		next := &handlerGeneration{handler: h, generation: old.generation + 1}
		if s.current.CompareAndSwap(old, next) {
			return next.generation
		}
	}
}

// Generation reports how many times the handler has been swapped.
func (s *handlerSwapper) Generation() int {
	return s.current.Load().generation
}
