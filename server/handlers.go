package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"luadec"
)

// DecompileResponse is POST /api/decompile's response body.
type DecompileResponse struct {
	Hash        string   `json:"hash"`
	Source      string   `json:"source"`
	Diagnostics []string `json:"diagnostics"`
	Cached      bool     `json:"cached"`
}

func (a *App) handleDecompile(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		http.Error(w, "reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty request body", http.StatusBadRequest)
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if a.reads != nil {
		if entry, err := a.reads.Get(hash); err == nil && entry != nil {
			writeJSON(w, DecompileResponse{
				Hash:        hash,
				Source:      entry.Source,
				Diagnostics: splitDiagnostics(entry.Diagnostics),
				Cached:      true,
			})
			return
		}
	}

	source, diags, err := luadec.Decompile(data)
	if err != nil {
		http.Error(w, "decompiling: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	diagStrings := make([]string, len(diags))
	var diagText string
	for i, d := range diags {
		diagStrings[i] = d.String()
		diagText += d.String() + "\n"
	}

	if a.writes != nil {
		if err := a.writes.Put(hash, source, diagText); err != nil {
			http.Error(w, "caching result: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, DecompileResponse{
		Hash:        hash,
		Source:      source,
		Diagnostics: diagStrings,
		Cached:      false,
	})
}

func (a *App) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if hash == "" {
		http.Error(w, "missing hash path parameter", http.StatusBadRequest)
		return
	}
	if a.reads == nil {
		http.Error(w, "cache database not configured", http.StatusServiceUnavailable)
		return
	}
	entry, err := a.reads.Get(hash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}

func splitDiagnostics(blob string) []string {
	var out []string
	start := 0
	for i := 0; i < len(blob); i++ {
		if blob[i] == '\n' {
			if i > start {
				out = append(out, blob[start:i])
			}
			start = i + 1
		}
	}
	if start < len(blob) {
		out = append(out, blob[start:])
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
