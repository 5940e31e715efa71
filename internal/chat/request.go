package chat

import (
	"gig-copilot/internal/attachment"
	"gig-copilot/internal/gemini"
	"gig-copilot/internal/history"
)

// buildRequest renders the conversation followed by the pending user turn.
// Only the pending turn carries the newly accepted files.
func (s *Session) buildRequest(text string, files []attachment.FileRef) gemini.GenerateRequest {
	turns := s.conv.Turns()
	contents := make([]gemini.Content, 0, len(turns)+1)
	for _, t := range turns {
		contents = append(contents, toContent(t))
	}
	contents = append(contents, toContent(history.NewTurn(history.RoleUser, text, files...)))

	req := gemini.GenerateRequest{
		Contents: contents,
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:     s.opts.Temperature,
			MaxOutputTokens: s.opts.MaxOutputTokens,
			CandidateCount:  1,
		},
	}
	if s.opts.IncludeThoughts {
		req.GenerationConfig.ThinkingConfig = &gemini.ThinkingConfig{IncludeThoughts: true}
	}
	if s.opts.SystemPrompt != "" {
		req.SystemInstruction = &gemini.Content{Parts: []gemini.Part{gemini.TextPart(s.opts.SystemPrompt)}}
	}
	return req
}

func toContent(t history.Turn) gemini.Content {
	c := gemini.Content{Role: t.Role, Parts: make([]gemini.Part, 0, len(t.Parts))}
	for _, p := range t.Parts {
		if p.File != nil {
			c.Parts = append(c.Parts, gemini.FilePart(*p.File))
			continue
		}
		c.Parts = append(c.Parts, gemini.TextPart(p.Text))
	}
	return c
}

// countFiles returns the number of file parts in req.
func countFiles(req gemini.GenerateRequest) int {
	n := 0
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			if p.FileData != nil {
				n++
			}
		}
	}
	return n
}
