package graph

import (
	"fmt"
	"strings"

	"github.com/quadracode/runtime/internal/chatmsg"
)

// Outline is the optional framing payload.outline a dispatch can carry,
// matching spec.md's field names exactly (outline.system/.focus/
// .ordered_segments), while the composition algorithm itself follows
// the original runtime's make_driver: join non-empty sections with a
// blank line, render Focus as a bullet list when it is a list, render
// it as a plain line when it is a string, then append ordered segments
// in order.
type Outline struct {
	System          string
	Focus           any // string or []string
	OrderedSegments []string
}

// SkillMetadata is one entry of active_skills_metadata; only the last
// six are rendered, oldest dropped first, matching the original.
type SkillMetadata struct {
	Name        string
	Description string
}

const maxRenderedSkills = 6

// ComposeSystemPrompt builds the final system prompt text from a base
// prompt, an optional Outline, and the active skills list.
func ComposeSystemPrompt(base string, outline *Outline, skills []SkillMetadata) string {
	var sections []string

	if base = strings.TrimSpace(base); base != "" {
		sections = append(sections, base)
	}

	if outline != nil {
		if s := strings.TrimSpace(outline.System); s != "" {
			sections = append(sections, s)
		}
		if focus := renderFocus(outline.Focus); focus != "" {
			sections = append(sections, focus)
		}
		for _, seg := range outline.OrderedSegments {
			if s := strings.TrimSpace(seg); s != "" {
				sections = append(sections, s)
			}
		}
	}

	if skillsBlock := renderSkills(skills); skillsBlock != "" {
		sections = append(sections, skillsBlock)
	}

	return strings.Join(sections, "\n\n")
}

func renderFocus(focus any) string {
	switch v := focus.(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		return renderBulletList(v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				items = append(items, s)
			}
		}
		return renderBulletList(items)
	default:
		return ""
	}
}

func renderBulletList(items []string) string {
	var lines []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		lines = append(lines, "- "+item)
	}
	return strings.Join(lines, "\n")
}

func renderSkills(skills []SkillMetadata) string {
	if len(skills) == 0 {
		return ""
	}
	if len(skills) > maxRenderedSkills {
		skills = skills[len(skills)-maxRenderedSkills:]
	}
	lines := make([]string, 0, len(skills)+1)
	lines = append(lines, "Active skills:")
	for _, s := range skills {
		if s.Description != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", s.Name, s.Description))
		} else {
			lines = append(lines, "- "+s.Name)
		}
	}
	return strings.Join(lines, "\n")
}

// ApplySystemPrompt replaces the first system turn in messages with
// prompt, or prepends one if none exists, matching the original
// runtime's replace-vs-prepend framing logic.
func ApplySystemPrompt(messages []chatmsg.Turn, prompt string) []chatmsg.Turn {
	for i, m := range messages {
		if m.Role == chatmsg.RoleSystem {
			out := append([]chatmsg.Turn(nil), messages...)
			out[i].Content = prompt
			return out
		}
	}
	out := make([]chatmsg.Turn, 0, len(messages)+1)
	out = append(out, chatmsg.Turn{Role: chatmsg.RoleSystem, Content: prompt})
	out = append(out, messages...)
	return out
}
