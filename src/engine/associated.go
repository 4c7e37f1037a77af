package engine

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"

	"github.com/zeebo/errs"
)

// AssociatedFilePatterns maps every group label to the file names that belong to it
var AssociatedFilePatterns = map[string][]string{
	"pca":      {"pca.trajectory_*.bin", "pca.pdb"},
	"clusters": {"clusters*.pdb", "clusters*.bin"},
	"markov":   {"markov_*.pdb"},
}

var numberedAnalysis = regexp.MustCompile(`^(.+)-\d+$`)

// AssociatedMember is one analysis or file of an associated group
type AssociatedMember struct {
	Name   string
	IsFile bool
}

func (m AssociatedMember) kind() dataKind {
	if m.IsFile {
		return fileData
	}
	return analysisData
}

// AnalysisGroupLabel returns the group an analysis name belongs to, or empty
func AnalysisGroupLabel(name string) string {
	label := name
	if match := numberedAnalysis.FindStringSubmatch(name); match != nil {
		label = match[1]
	}
	if _, ok := AssociatedFilePatterns[label]; ok {
		return label
	}
	return ""
}

// FileGroupLabel returns the group a file name belongs to, or empty
func FileGroupLabel(name string) string {
	labels := make([]string, 0, len(AssociatedFilePatterns))
	for label := range AssociatedFilePatterns {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		if fileMatchesGroup(label, name) {
			return label
		}
	}
	return ""
}

func fileMatchesGroup(label, name string) bool {
	for _, pattern := range AssociatedFilePatterns[label] {
		if matched, err := path.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

func groupLabel(kind dataKind, name string) string {
	if kind == fileData {
		return FileGroupLabel(name)
	}
	return AnalysisGroupLabel(name)
}

// FindAssociatedData collects the analyses and files of the given scope that
// belong to label
func (p *Project) FindAssociatedData(label string, mdIndex int) []AssociatedMember {
	var members []AssociatedMember
	if analyses, err := p.refList(analysisData, mdIndex); err == nil {
		for _, ref := range *analyses {
			if AnalysisGroupLabel(ref.Name) == label {
				members = append(members, AssociatedMember{Name: ref.Name})
			}
		}
	}
	if files, err := p.refList(fileData, mdIndex); err == nil {
		for _, ref := range *files {
			if fileMatchesGroup(label, ref.Name) {
				members = append(members, AssociatedMember{Name: ref.Name, IsFile: true})
			}
		}
	}
	return members
}

// DeleteAssociatedData deletes every member of a group and persists once.
// It runs to completion regardless of the abort predicate.
func (p *Project) DeleteAssociatedData(ctx context.Context, label string, mdIndex int) error {
	members := p.FindAssociatedData(label, mdIndex)
	if len(members) == 0 {
		return NotFound.New("associated data %s in %s", label, scopeLabel(mdIndex))
	}

	var group errs.Group
	touched := map[string]bool{}
	for _, member := range members {
		refs, err := p.refList(member.kind(), mdIndex)
		if err != nil {
			group.Add(err)
			continue
		}
		position := findRef(*refs, member.Name)
		if position < 0 {
			continue
		}
		if err := p.removeRef(ctx, member.kind(), mdIndex, position); err != nil {
			group.Add(err)
			continue
		}
		touched[refField(member.kind(), mdIndex)] = true
	}

	fields := make([]string, 0, len(touched))
	for field := range touched {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	if err := p.persist(ctx, fields...); err != nil {
		group.Add(err)
	}
	if err := group.Err(); err != nil {
		return err
	}
	p.logger.Infof("Deleted %d members of associated data %s from %s", len(members), label, scopeLabel(mdIndex))
	return nil
}

// ForestallAnalysisLoad decides whether an analysis about to be loaded should
// be written. An existing one is conserved or deleted according to policy.
func (p *Project) ForestallAnalysisLoad(ctx context.Context, name string, mdIndex int, policy Policy) (bool, error) {
	return p.forestall(ctx, analysisData, name, mdIndex, policy, false)
}

// ForestallFileLoad is ForestallAnalysisLoad for files. When the stored file has
// the same digest as the incoming one it is conserved without asking.
func (p *Project) ForestallFileLoad(ctx context.Context, name string, mdIndex int, policy Policy, digest string) (bool, error) {
	sameContent := false
	if digest != "" && p.FindFile(name, mdIndex) != nil {
		stored, err := p.FileDigest(ctx, name, mdIndex)
		if err != nil && !Inconsistency.Has(err) {
			return false, err
		}
		sameContent = stored != "" && stored == digest
	}
	return p.forestall(ctx, fileData, name, mdIndex, policy, sameContent)
}

func (p *Project) forestall(ctx context.Context, kind dataKind, name string, mdIndex int, policy Policy, sameContent bool) (bool, error) {
	if p.findRef(kind, name, mdIndex) == nil {
		return true, nil
	}

	label := groupLabel(kind, name)
	cacheKey := fmt.Sprintf("%s@%d", label, mdIndex)
	if label != "" {
		if action, ok := p.decisions[cacheKey]; ok {
			return p.applyLoadDecision(ctx, kind, name, mdIndex, action)
		}
	}

	if sameContent {
		p.logger.Infof("%s %s in %s is unchanged, keeping it", kind, name, scopeLabel(mdIndex))
		return false, nil
	}

	action := ResolveConflict(policy)
	if action == ActionPrompt {
		subject := fmt.Sprintf("%s %s", kind, name)
		if label != "" {
			subject = fmt.Sprintf("associated data %s", label)
		}
		question := fmt.Sprintf("The %s already exists in %s of project %s.", subject, scopeLabel(mdIndex), p.data.Accession)
		var err error
		if action, err = askConserveOverwrite(ctx, p.db.prompter, question); err != nil {
			return false, err
		}
	}
	if label != "" {
		p.decisions[cacheKey] = action
	}
	return p.applyLoadDecision(ctx, kind, name, mdIndex, action)
}

func (p *Project) applyLoadDecision(ctx context.Context, kind dataKind, name string, mdIndex int, action Action) (bool, error) {
	if action != ActionOverwrite {
		return false, nil
	}
	// An earlier group member may have removed it already
	if p.findRef(kind, name, mdIndex) == nil {
		return true, nil
	}
	if err := p.deleteData(ctx, kind, name, mdIndex, true); err != nil {
		return false, err
	}
	return true, nil
}
