// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xmlstream presents a UTF-8 XML document as a lazy sequence of
// group-event subtrees, in document order, using memory proportional to
// one subtree rather than the whole document.
package xmlstream

import (
	"bufio"
	"encoding/xml"
	"io"
	"os"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/ingesterr"
	"github.com/ClusterCockpit/xml2pg-ingest/pkg/log"
)

// EventSubtree is the unparsed form of one <event> child: its raw id
// attribute text and its raw character-data text. Validation and type
// conversion are the Record Extractor's job, not the streamer's.
type EventSubtree struct {
	IDAttr string
	Text   string
}

// GroupSubtree is the unparsed form of one group-event element: its raw
// id/name attribute text and its direct <event> children in document
// order. Descendant elements below the event level are ignored.
type GroupSubtree struct {
	IDAttr   string
	NameAttr string
	Events   []EventSubtree
}

// rawNode is a generic decode target used to pull one element (and only
// that element's subtree) off the token stream regardless of its tag
// name, since group/event tag names are configurable and so cannot be
// fixed struct tags.
type rawNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []rawNode  `xml:",any"`
}

func (n rawNode) attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// Streamer is a one-shot, forward-only iterator over the group subtrees
// of a single XML file.
type Streamer struct {
	GroupTag string
	EventTag string
	Recover  bool
	// HugeTree mirrors the libxml2 "huge_tree" safety-cap knob from the
	// source system. encoding/xml has no document-size ceiling to lift,
	// so this only documents intent at the configuration boundary and is
	// otherwise a no-op here.
	HugeTree bool

	Stats ReaderStats

	file *os.File
	dec  *xml.Decoder
	done bool
}

// ReaderStats are the per-producer counters accumulated while streaming.
// Extractor-level counters (groups_emitted, events_emitted,
// skipped_records) are accumulated by the caller, not the streamer.
type ReaderStats struct {
	GroupsSeen int64
}

// Open prepares a Streamer over path. The file is held open until the
// stream is exhausted or Close is called.
func Open(path string, groupTag, eventTag string, recover, hugeTree bool) (*Streamer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ingesterr.XMLFatal{Path: path, Err: err}
	}
	s := &Streamer{
		GroupTag: groupTag,
		EventTag: eventTag,
		Recover:  recover,
		HugeTree: hugeTree,
		file:     f,
		dec:      xml.NewDecoder(bufio.NewReaderSize(f, 64*1024)),
	}
	return s, nil
}

func (s *Streamer) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Next returns the next group subtree in document order, or (nil, nil,
// false) once the document is exhausted. Every already-yielded subtree
// and every already-processed left sibling is released by the decoder's
// own token stream before Next returns, so peak memory stays bounded by
// the single largest subtree plus small parser state.
//
// encoding/xml latches a well-formedness error permanently once hit:
// every later Token/DecodeElement call on the same Decoder returns that
// same error, so there is no resynchronizing past it onto later
// siblings the way libxml2's recover mode can. In recover=true mode this
// means a malformed subtree ends the stream at that point rather than
// aborting the whole run; the subtree's own id/name attributes and any
// of its children already decoded before the error struck are kept
// (DecodeElement mutates its target incrementally, so partial content
// survives even though it ultimately returns an error).
func (s *Streamer) Next() (*GroupSubtree, error, bool) {
	if s.done {
		return nil, nil, false
	}

	for {
		tok, err := s.dec.Token()
		if err == io.EOF {
			s.done = true
			return nil, nil, false
		}
		if err != nil {
			s.done = true
			if s.Recover {
				log.Warnf("xmlstream: ending stream early after parse error (recover=true): %v", err)
				return nil, nil, false
			}
			return nil, &ingesterr.XMLFatal{Err: err}, false
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != s.GroupTag {
			continue
		}

		s.Stats.GroupsSeen++

		var node rawNode
		if derr := s.dec.DecodeElement(&node, &start); derr != nil {
			if !s.Recover {
				s.done = true
				return nil, &ingesterr.XMLFatal{Err: derr}, false
			}
			log.Warnf("xmlstream: recovered from malformed %s subtree, keeping its already-parsed content: %v", s.GroupTag, derr)
			s.done = true
			return s.toSubtree(node), nil, true
		}

		return s.toSubtree(node), nil, true
	}
}

func (s *Streamer) toSubtree(node rawNode) *GroupSubtree {
	idAttr, _ := node.attr("id")
	nameAttr, _ := node.attr("name")

	sub := &GroupSubtree{IDAttr: idAttr, NameAttr: nameAttr}
	for _, child := range node.Children {
		if child.XMLName.Local != s.EventTag {
			continue
		}
		eventID, _ := child.attr("id")
		sub.Events = append(sub.Events, EventSubtree{IDAttr: eventID, Text: child.Content})
	}
	return sub
}
