package apk

import (
	"sort"
	"time"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// Chain tries parsers in priority order until one succeeds
type Chain struct {
	parsers []Parser
	logger  utils.Logger
}

// NewChain creates a parser chain
func NewChain(logger utils.Logger, parsers ...Parser) *Chain {
	if logger == nil {
		logger = utils.WithComponent("apk")
	}
	c := &Chain{logger: logger}
	for _, p := range parsers {
		c.AddParser(p)
	}
	return c
}

// DefaultChain is the built-in parser backed by aapt when available.
func DefaultChain(logger utils.Logger) *Chain {
	return NewChain(logger, NewBinaryParser(), NewAAPTParser())
}

// AddParser adds a parser to the chain
func (c *Chain) AddParser(p Parser) {
	c.parsers = append(c.parsers, p)
	sort.SliceStable(c.parsers, func(i, j int) bool {
		return c.parsers[i].Describe().Priority < c.parsers[j].Describe().Priority
	})
}

// ParseFile returns the result of the first parser that succeeds
func (c *Chain) ParseFile(path string) (*Info, error) {
	var lastErr error
	for _, p := range c.parsers {
		desc := p.Describe()
		if !desc.Available || !p.CanParse(path) {
			continue
		}

		start := time.Now()
		info, err := p.ParseFile(path)
		if err != nil {
			c.logger.Debug("Parser %s failed on %s: %v", desc.Name, path, err)
			lastErr = err
			continue
		}
		c.logger.Debug("Parsed %s with %s in %v", path, desc.Name, time.Since(start))
		return info, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, apperrors.NewParsingError("NO_PARSER", "no parser can handle this file").
		WithContext("path", path)
}

// Describe returns the highest priority available parser.
func (c *Chain) Describe() ParserInfo {
	for _, p := range c.parsers {
		if d := p.Describe(); d.Available {
			return ParserInfo{Name: "Chain(" + d.Name + ")", Available: true, Priority: d.Priority}
		}
	}
	return ParserInfo{Name: "Chain"}
}

// CanParse reports whether any available parser accepts path.
func (c *Chain) CanParse(path string) bool {
	for _, p := range c.parsers {
		if p.Describe().Available && p.CanParse(path) {
			return true
		}
	}
	return false
}
