package llm

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// EventKind discriminates decoded stream events
type EventKind int

const (
	// EventContent carries a text delta
	EventContent EventKind = iota
	// EventDone terminates the stream
	EventDone
	// EventFunctionCall carries a completed mid-stream function call
	EventFunctionCall
)

// Event is one decoded stream event
type Event struct {
	Kind      EventKind
	Text      string
	Name      string
	Arguments string
}

// doneSentinel terminates an SSE completion stream
const doneSentinel = "[DONE]"

// streamPayload is the JSON carried by one data frame
type streamPayload struct {
	Choices []struct {
		Delta struct {
			Content      string `json:"content"`
			FunctionCall *struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function_call"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Decoder incrementally parses newline-delimited `data:` frames from a
// completion response body. It owns a carry-over buffer so frames split
// across reads are reassembled; malformed individual frames are skipped,
// never fatal. Only transport errors from the underlying reader surface
// as errors.
type Decoder struct {
	r       io.Reader
	buf     []byte
	scratch []byte
	queue   []Event
	eof     bool
	done    bool

	// partial function-call accumulation across frames
	fnName string
	fnArgs strings.Builder
}

// NewDecoder creates a decoder over a streaming response body
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		scratch: make([]byte, 4096),
	}
}

// Next returns the next decoded event. After EventDone the decoder is
// exhausted and returns io.EOF. A stream that ends without the done
// sentinel is a truncated transport and yields io.ErrUnexpectedEOF.
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}
		if d.done {
			return Event{}, io.EOF
		}
		if d.eof {
			// flush any unterminated trailing line
			if line := bytes.TrimSpace(d.buf); len(line) > 0 {
				d.buf = nil
				d.decodeLine(line)
				continue
			}
			return Event{}, io.ErrUnexpectedEOF
		}

		n, err := d.r.Read(d.scratch)
		if n > 0 {
			d.buf = append(d.buf, d.scratch[:n]...)
			d.drainLines()
		}
		if err == io.EOF {
			d.eof = true
			continue
		}
		if err != nil {
			return Event{}, err
		}
	}
}

// drainLines consumes complete lines from the carry buffer; an
// incomplete trailing frame stays buffered for the next read.
func (d *Decoder) drainLines() {
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return
		}
		line := bytes.TrimSpace(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		if len(line) > 0 {
			d.decodeLine(line)
		}
	}
}

func (d *Decoder) decodeLine(line []byte) {
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		// keep-alive, comment or event: line
		return
	}
	data = bytes.TrimSpace(data)

	if string(data) == doneSentinel {
		d.done = true
		d.queue = append(d.queue, Event{Kind: EventDone})
		return
	}

	var payload streamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// malformed frame: skip, decoding continues
		return
	}
	if len(payload.Choices) == 0 {
		return
	}

	choice := payload.Choices[0]
	if fc := choice.Delta.FunctionCall; fc != nil {
		if fc.Name != "" {
			d.fnName = fc.Name
		}
		d.fnArgs.WriteString(fc.Arguments)
	}
	if choice.Delta.Content != "" {
		d.queue = append(d.queue, Event{Kind: EventContent, Text: choice.Delta.Content})
	}
	if choice.FinishReason == "function_call" && d.fnName != "" {
		d.queue = append(d.queue, Event{
			Kind:      EventFunctionCall,
			Name:      d.fnName,
			Arguments: d.fnArgs.String(),
		})
		d.fnName = ""
		d.fnArgs.Reset()
	}
}
