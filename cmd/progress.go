package cmd

import (
	"fmt"
	"io"
	"strings"
)

// progressBar draws batch progress on a terminal line. Failed runs still
// advance the bar and are counted separately.
type progressBar struct {
	total       int
	done        int
	failed      int
	width       int
	description string
	writer      io.Writer
}

func newProgressBar(total int, description string, writer io.Writer) *progressBar {
	return &progressBar{
		total:       total,
		width:       30,
		description: description,
		writer:      writer,
	}
}

// Done records one finished run. ok is false when the run failed.
func (p *progressBar) Done(ok bool) {
	if p.done < p.total {
		p.done++
		if !ok {
			p.failed++
		}
	}
	p.render()
}

// Finish draws the final state and ends the line.
func (p *progressBar) Finish() {
	p.render()
	fmt.Fprintln(p.writer)
}

func (p *progressBar) render() {
	if p.total <= 0 {
		return
	}

	filled := p.done * p.width / p.total
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", p.width-filled)
	fmt.Fprintf(p.writer, "\r%s [%s] %d/%d", p.description, bar, p.done, p.total)
	if p.failed > 0 {
		fmt.Fprintf(p.writer, " (%d failed)", p.failed)
	}
}
