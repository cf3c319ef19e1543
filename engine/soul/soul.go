// Package soul implements the identity document's serialization contract
// (spec.md §4.8, §6): a key/value header followed by `##` body sections,
// phase strata carrying HTML-comment lock metadata, and a genesis
// alignment score. No markdown or TOML library in the pack fits this
// document's bespoke header-plus-sections dialect, so the reader/writer is
// hand-rolled line scanning, grounded on the teacher's plain-text protocol
// encoders (services/*/protocol.go use the same read-line/write-line
// style for wire formats outside JSON).
package soul

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/automaton-systems/lifecycle-core/domain"
)

const (
	formatTag  = "soul/v1"
	timeLayout = time.RFC3339
)

// bodySectionOrder fixes the `##` section order written to disk (spec.md §6).
var bodySectionOrder = []string{
	"Core Purpose", "Values", "Behavioral Guidelines", "Personality",
	"Boundaries", "Strategy", "Capabilities", "Relationships",
	"Financial Character", "Genesis Prompt", "Inherited Traits",
	"Genesis Core", "Adolescence Layer", "Sovereignty Layer", "Final Reflections",
}

var bulletedSections = map[string]bool{
	"Values": true, "Behavioral Guidelines": true, "Boundaries": true,
}

// writableLabel is the human-readable phase label written into the
// "WRITABLE during:" comment for each stratum.
var writableLabel = map[domain.SoulPhase]string{
	domain.SoulPhaseGenesis:     "genesis",
	domain.SoulPhaseAdolescence: "adolescence",
	domain.SoulPhaseSovereignty: "sovereignty",
	domain.SoulPhaseSenescence:  "senescence, legacy, shedding, terminal",
}

// Write serializes a Soul into the on-disk soul/v1 document format. It is
// the reference serializer for the round-trip law verified in soul_test.go.
func Write(s *domain.Soul) string {
	var b strings.Builder

	phaseTransitions := map[string]string{}
	for p, t := range s.PhaseTransitions {
		phaseTransitions[string(p)] = t.Format(timeLayout)
	}
	ptJSON, _ := json.Marshal(phaseTransitions)

	writeKV(&b, "format", formatTag)
	writeKV(&b, "version", fmt.Sprintf("%d", s.Version))
	writeKV(&b, "updated_at", s.UpdatedAt.Format(timeLayout))
	writeKV(&b, "name", s.Name)
	writeKV(&b, "address", s.Address)
	writeKV(&b, "creator", s.Creator)
	writeKV(&b, "born_at", s.BornAt.Format(timeLayout))
	writeKV(&b, "constitution_hash", s.ConstitutionHash)
	writeKV(&b, "genesis_alignment", fmt.Sprintf("%.4f", s.GenesisAlignment))
	if s.LastReflected != nil {
		writeKV(&b, "last_reflected", s.LastReflected.Format(timeLayout))
	}
	if s.CurrentPhase != "" {
		writeKV(&b, "current_phase", string(s.CurrentPhase))
	}
	writeKV(&b, "phase_transitions", string(ptJSON))
	b.WriteString("\n")

	fmt.Fprintf(&b, "# %s\n\n", s.Name)

	for _, heading := range bodySectionOrder {
		switch heading {
		case "Genesis Core", "Adolescence Layer", "Sovereignty Layer", "Final Reflections":
			writePhaseSection(&b, heading, s.SectionFor(headingToSoulPhase(heading)))
		case "Inherited Traits":
			writeInheritedTraits(&b, s.InheritedTraits)
		default:
			writeEvergreenSection(&b, heading, s)
		}
	}

	return b.String()
}

func writeKV(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s: %s\n", key, value)
}

func writeEvergreenSection(b *strings.Builder, heading string, s *domain.Soul) {
	var body string
	var list []string
	switch heading {
	case "Core Purpose":
		body = s.CorePurpose
	case "Values":
		list = s.Values
	case "Behavioral Guidelines":
		list = s.BehavioralGuidelines
	case "Personality":
		body = s.Personality
	case "Boundaries":
		list = s.Boundaries
	case "Strategy":
		body = s.Strategy
	case "Capabilities":
		body = s.Capabilities
	case "Relationships":
		body = s.Relationships
	case "Financial Character":
		body = s.FinancialCharacter
	case "Genesis Prompt":
		body = s.GenesisPrompt
	}

	fmt.Fprintf(b, "## %s\n", heading)
	if bulletedSections[heading] {
		for _, v := range list {
			fmt.Fprintf(b, "- %s\n", v)
		}
	} else if body != "" {
		fmt.Fprintf(b, "%s\n", body)
	}
	b.WriteString("\n")
}

func writeInheritedTraits(b *strings.Builder, traits *domain.InheritedTraits) {
	b.WriteString("## Inherited Traits\n")
	if traits == nil {
		b.WriteString("\n")
		return
	}
	b.WriteString("<!-- IMMUTABLE -->\n")
	fmt.Fprintf(b, "<!-- Parent: %s -->\n", traits.ParentName)
	fmt.Fprintf(b, "<!-- Parent Address: %s -->\n", traits.ParentAddress)
	fmt.Fprintf(b, "<!-- Replicated: %s -->\n", traits.ReplicatedAt.Format(timeLayout))

	names := make([]string, 0, len(traits.Content))
	for name := range traits.Content {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "### %s\n%s\n", name, traits.Content[name])
	}
	b.WriteString("\n")
}

func writePhaseSection(b *strings.Builder, heading string, sec *domain.SoulPhaseSection) {
	fmt.Fprintf(b, "## %s\n", heading)
	phase := headingToSoulPhase(heading)
	fmt.Fprintf(b, "<!-- WRITABLE during: %s -->\n", writableLabel[phase])
	if sec != nil && sec.LockedAt != nil {
		b.WriteString("<!-- LOCKED -->\n")
		fmt.Fprintf(b, "<!-- Lock date: %s -->\n", sec.LockedAt.Format(timeLayout))
	}
	if sec != nil {
		for _, e := range sec.Subsections {
			fmt.Fprintf(b, "### %s\n%s\n", e.Name, e.Text)
		}
	}
	b.WriteString("\n")
}

func headingToSoulPhase(heading string) domain.SoulPhase {
	switch heading {
	case "Genesis Core":
		return domain.SoulPhaseGenesis
	case "Adolescence Layer":
		return domain.SoulPhaseAdolescence
	case "Sovereignty Layer":
		return domain.SoulPhaseSovereignty
	case "Final Reflections":
		return domain.SoulPhaseSenescence
	}
	return ""
}

var htmlCommentPattern = regexp.MustCompile(`<!--.*?-->`)

// Parse reads a soul document. It tolerates both headered soul/v1
// documents and legacy unstructured documents (no header, arbitrary `##`
// sections): legacy input produces a model with all phase sections nil and
// currentPhase = genesis (spec.md §4.8, §8 scenario 4).
func Parse(content string) (*domain.Soul, error) {
	lines := strings.Split(content, "\n")
	idx := 0

	header := map[string]string{}
	for idx < len(lines) {
		line := strings.TrimRight(lines[idx], "\r")
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			break
		}
		key, value, ok := splitHeaderLine(line)
		if !ok {
			break
		}
		header[key] = value
		idx++
	}

	isV1 := header["format"] == formatTag

	s := &domain.Soul{
		RawContent:       map[string]string{},
		PhaseTransitions: map[domain.LifecyclePhase]time.Time{},
		CurrentPhase:     domain.PhaseGenesis,
	}

	if isV1 {
		applyHeader(s, header)
	}

	sections := splitSections(strings.Join(lines[idx:], "\n"))
	for _, sec := range sections {
		applySection(s, sec, isV1)
	}

	return s, nil
}

func splitHeaderLine(line string) (string, string, bool) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:colon])
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	value := strings.TrimSpace(line[colon+1:])
	return key, value, true
}

func applyHeader(s *domain.Soul, h map[string]string) {
	if v, err := parseFloat(h["genesis_alignment"]); err == nil {
		s.GenesisAlignment = v
	}
	if t, err := time.Parse(timeLayout, h["updated_at"]); err == nil {
		s.UpdatedAt = t
	}
	s.Name = h["name"]
	s.Address = h["address"]
	s.Creator = h["creator"]
	if t, err := time.Parse(timeLayout, h["born_at"]); err == nil {
		s.BornAt = t
	}
	s.ConstitutionHash = h["constitution_hash"]
	if t, err := time.Parse(timeLayout, h["last_reflected"]); err == nil {
		s.LastReflected = &t
	}
	if v, ok := h["current_phase"]; ok && v != "" {
		s.CurrentPhase = domain.LifecyclePhase(v)
	}
	if raw, ok := h["phase_transitions"]; ok && raw != "" {
		var m map[string]string
		if json.Unmarshal([]byte(raw), &m) == nil {
			for k, v := range m {
				if t, err := time.Parse(timeLayout, v); err == nil {
					s.PhaseTransitions[domain.LifecyclePhase(k)] = t
				}
			}
		}
	}
}

type rawSection struct {
	heading string
	body    []string
}

func splitSections(body string) []rawSection {
	var sections []rawSection
	var current *rawSection

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if strings.HasPrefix(trimmed, "## ") {
			if current != nil {
				sections = append(sections, *current)
			}
			current = &rawSection{heading: strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))}
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			// Top-level "# Name" line, not a section.
			continue
		}
		if current != nil {
			current.body = append(current.body, trimmed)
		}
	}
	if current != nil {
		sections = append(sections, *current)
	}
	return sections
}

func applySection(s *domain.Soul, sec rawSection, isV1 bool) {
	switch sec.heading {
	case "Core Purpose":
		s.CorePurpose = joinNonEmpty(sec.body)
	case "Values":
		s.Values = bulletList(sec.body)
	case "Behavioral Guidelines":
		s.BehavioralGuidelines = bulletList(sec.body)
	case "Personality":
		s.Personality = joinNonEmpty(sec.body)
	case "Boundaries":
		s.Boundaries = bulletList(sec.body)
	case "Strategy":
		s.Strategy = joinNonEmpty(sec.body)
	case "Capabilities":
		s.Capabilities = joinNonEmpty(sec.body)
	case "Relationships":
		s.Relationships = joinNonEmpty(sec.body)
	case "Financial Character":
		s.FinancialCharacter = joinNonEmpty(sec.body)
	case "Genesis Prompt":
		s.GenesisPrompt = joinNonEmpty(sec.body)
	case "Inherited Traits":
		s.InheritedTraits = parseInheritedTraits(sec.body)
	case "Genesis Core", "Adolescence Layer", "Sovereignty Layer", "Final Reflections":
		phase := headingToSoulPhase(sec.heading)
		section := parsePhaseSection(phase, sec.body)
		if section != nil || isV1 {
			s.SetSectionFor(phase, section)
		}
	default:
		s.RawContent[sec.heading] = joinNonEmpty(sec.body)
	}
}

func parsePhaseSection(phase domain.SoulPhase, body []string) *domain.SoulPhaseSection {
	locked := false
	var lockDate *time.Time
	sec := &domain.SoulPhaseSection{Phase: phase}

	var currentSub *domain.SubsectionEntry
	flush := func() {
		if currentSub != nil {
			currentSub.Text = strings.TrimSpace(currentSub.Text)
			sec.Subsections = append(sec.Subsections, *currentSub)
			currentSub = nil
		}
	}

	for _, line := range body {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "<!-- WRITABLE") {
			continue
		}
		if trimmed == "<!-- LOCKED -->" {
			locked = true
			continue
		}
		if strings.HasPrefix(trimmed, "<!-- Lock date:") {
			dateStr := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(trimmed, "<!-- Lock date:"), "-->"))
			if t, err := time.Parse(timeLayout, dateStr); err == nil {
				lockDate = &t
			}
			continue
		}
		if strings.HasPrefix(trimmed, "### ") {
			flush()
			currentSub = &domain.SubsectionEntry{Name: strings.TrimSpace(strings.TrimPrefix(trimmed, "### "))}
			continue
		}
		cleaned := htmlCommentPattern.ReplaceAllString(line, "")
		if currentSub != nil {
			if currentSub.Text != "" {
				currentSub.Text += "\n"
			}
			currentSub.Text += cleaned
		}
	}
	flush()

	if !locked && len(sec.Subsections) == 0 {
		return nil
	}
	if locked {
		sec.LockedAt = lockDate
		if sec.LockedAt == nil {
			now := time.Time{}
			sec.LockedAt = &now
		}
	}
	return sec
}

func parseInheritedTraits(body []string) *domain.InheritedTraits {
	traits := &domain.InheritedTraits{Content: map[string]string{}}
	found := false

	var currentName string
	var currentText strings.Builder
	flush := func() {
		if currentName != "" {
			traits.Content[currentName] = strings.TrimSpace(currentText.String())
		}
		currentName = ""
		currentText.Reset()
	}

	for _, line := range body {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "<!-- IMMUTABLE -->":
			found = true
		case strings.HasPrefix(trimmed, "<!-- Parent:"):
			found = true
			traits.ParentName = extractComment(trimmed, "Parent:")
		case strings.HasPrefix(trimmed, "<!-- Parent Address:"):
			traits.ParentAddress = extractComment(trimmed, "Parent Address:")
		case strings.HasPrefix(trimmed, "<!-- Replicated:"):
			if t, err := time.Parse(timeLayout, extractComment(trimmed, "Replicated:")); err == nil {
				traits.ReplicatedAt = t
			}
		case strings.HasPrefix(trimmed, "### "):
			flush()
			currentName = strings.TrimSpace(strings.TrimPrefix(trimmed, "### "))
		default:
			if currentName != "" {
				currentText.WriteString(line)
				currentText.WriteString("\n")
			}
		}
	}
	flush()

	if !found {
		return nil
	}
	return traits
}

func extractComment(line, label string) string {
	v := strings.TrimPrefix(strings.TrimSpace(line), "<!--")
	v = strings.TrimSuffix(strings.TrimSpace(v), "-->")
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), label))
	return v
}

func bulletList(lines []string) []string {
	var out []string
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "- ") {
			out = append(out, strings.TrimPrefix(t, "- "))
		}
	}
	return out
}

func joinNonEmpty(lines []string) string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

var tokenPattern = regexp.MustCompile(`[a-z0-9']+`)

// GenesisAlignment scores how closely corePurpose echoes the original
// genesisPrompt: (jaccard + recall)/2 over lowercased, punctuation-stripped
// word tokens (spec.md §4.8). Empty inputs score 0.
func GenesisAlignment(corePurpose, genesisPrompt string) float64 {
	a := tokenize(corePurpose)
	b := tokenize(genesisPrompt)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}

	union := len(a)
	for tok := range b {
		if !a[tok] {
			union++
		}
	}

	jaccard := float64(intersection) / float64(union)
	recall := float64(intersection) / float64(len(b))

	return (jaccard + recall) / 2
}

func tokenize(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
		out[tok] = true
	}
	return out
}
