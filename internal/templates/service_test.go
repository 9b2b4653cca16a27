package templates

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
)

func TestServiceCreateDefaults(t *testing.T) {
	svc := newTestService(nil)

	tmpl, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, 1, tmpl.Version)
	assert.Equal(t, "en", tmpl.Language)
	assert.Equal(t, StatusEnabled, tmpl.Status)
	assert.False(t, tmpl.IsSystem)
	assert.Equal(t, fixedNow, tmpl.CreatedAt)
	require.Len(t, tmpl.Subjects, 2)
	assert.True(t, tmpl.Subjects[0].IsActive)
	assert.NotEmpty(t, tmpl.Subjects[0].ID)
	require.NotNil(t, tmpl.CTA)
	assert.NotEmpty(t, tmpl.CTA.ID)

	got, err := svc.Get(context.Background(), tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Name, got.Name)
}

func TestServiceCreateRejectsTokenAllowedOnlyInAnotherBlock(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := newTestService(repo)

	in := sampleInput()
	in.Blocks[1].Content = "{{company_name}} could run leaner events, {{sender_name}}."

	_, err := svc.Create(context.Background(), in)
	require.ErrorIs(t, err, apperr.ErrValidation)

	issues := apperr.IssuesOf(err)
	require.Len(t, issues, 1)
	assert.Equal(t, "value_prop#2", issues[0].Block)
	assert.Equal(t, "sender_name", issues[0].Token)

	list, err := repo.List(context.Background(), ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestServiceCreateRejectsSparseSortOrder(t *testing.T) {
	svc := newTestService(nil)
	in := sampleInput()
	in.Blocks[2].SortOrder = 5

	_, err := svc.Create(context.Background(), in)
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.NotEmpty(t, apperr.IssuesOf(err))
	assert.Equal(t, "blocks", apperr.IssuesOf(err)[0].Field)
}

func TestServiceCreateRequiresSubjectsAndBlocks(t *testing.T) {
	svc := newTestService(nil)
	in := sampleInput()
	in.Subjects = nil
	in.Blocks = nil
	in.CTA = nil

	_, err := svc.Create(context.Background(), in)
	require.ErrorIs(t, err, apperr.ErrValidation)

	fields := map[string]bool{}
	for _, issue := range apperr.IssuesOf(err) {
		fields[issue.Field] = true
	}
	assert.True(t, fields["subjects"])
	assert.True(t, fields["blocks"])
}

func TestServiceUpdateBumpsVersionAndDensifies(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	tmpl, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	opening := tmpl.Blocks[0].ID
	updated, err := svc.Update(ctx, tmpl.ID, Patch{
		Version:      1,
		Name:         strPtr("Follow up v2"),
		RemoveBlocks: []string{opening},
		AddBlocks: []BlockInput{
			{BlockType: BlockProof, SortOrder: 2, Content: "Teams like yours, {{lead_name}}, trust us.", AllowedVars: []string{"lead_name"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Follow up v2", updated.Name)
	require.Len(t, updated.Blocks, 3)
	for i, b := range updated.Blocks {
		assert.Equal(t, i+1, b.SortOrder)
	}
	assert.Equal(t, BlockValueProp, updated.Blocks[0].BlockType)
	assert.Equal(t, BlockProof, updated.Blocks[1].BlockType)
	assert.Equal(t, BlockSignature, updated.Blocks[2].BlockType)
}

func TestServiceUpdateRejectsTokenAllowedOnlyInAnotherBlock(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	tmpl, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	blocks := []BlockInput{
		{ID: tmpl.Blocks[0].ID, BlockType: BlockOpening, SortOrder: 1, Content: "Hi {{lead_name}} from {{sender_name}}", AllowedVars: []string{"lead_name"}},
		{ID: tmpl.Blocks[1].ID, BlockType: BlockValueProp, SortOrder: 2, Content: "{{company_name}} could run leaner events.", AllowedVars: []string{"company_name"}},
		{ID: tmpl.Blocks[2].ID, BlockType: BlockSignature, SortOrder: 3, Content: "{{sender_name}}", AllowedVars: []string{"sender_name"}},
	}
	_, err = svc.Update(ctx, tmpl.ID, Patch{Version: 1, Blocks: &blocks})
	require.ErrorIs(t, err, apperr.ErrValidation)
	issues := apperr.IssuesOf(err)
	require.NotEmpty(t, issues)
	assert.Equal(t, "opening#1", issues[0].Block)
	assert.Equal(t, "sender_name", issues[0].Token)

	current, err := svc.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Version)
	assert.Len(t, current.Blocks, 3)
}

func TestServiceConcurrentUpdatesConflict(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	tmpl, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	for v := 1; v < 3; v++ {
		_, err := svc.Update(ctx, tmpl.ID, Patch{Version: v, Notes: strPtr("edit")})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Update(ctx, tmpl.ID, Patch{Version: 3, Tone: strPtr("formal")})
		}(i)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperr.ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	current, err := svc.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, current.Version)
}

func TestServiceDuplicateCopiesStructure(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	seeds, err := LoadSeeds("")
	require.NoError(t, err)
	_, err = svc.EnsureSystemTemplates(ctx, seeds[:1])
	require.NoError(t, err)

	system := true
	res, err := svc.List(ctx, ListFilter{IsSystem: &system})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	src := res.Items[0]
	_, err = svc.RecordUsage(ctx, src.ID)
	require.NoError(t, err)
	src, err = svc.Get(ctx, src.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.UsageCount)

	dup, err := svc.Duplicate(ctx, src.ID, "My copy")
	require.NoError(t, err)

	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, "My copy", dup.Name)
	assert.Equal(t, 1, dup.Version)
	assert.Zero(t, dup.UsageCount)
	assert.False(t, dup.IsSystem)

	ignoreIDs := cmp.Options{
		cmpopts.IgnoreFields(Subject{}, "ID"),
		cmpopts.IgnoreFields(Block{}, "ID"),
		cmpopts.IgnoreFields(CTA{}, "ID"),
	}
	assert.Empty(t, cmp.Diff(src.Subjects, dup.Subjects, ignoreIDs))
	assert.Empty(t, cmp.Diff(src.Blocks, dup.Blocks, ignoreIDs))
	assert.Empty(t, cmp.Diff(src.CTA, dup.CTA, ignoreIDs))
	for i := range src.Blocks {
		assert.NotEqual(t, src.Blocks[i].ID, dup.Blocks[i].ID)
	}
}

func TestServiceDeleteRules(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	seeds, err := LoadSeeds("")
	require.NoError(t, err)
	_, err = svc.EnsureSystemTemplates(ctx, seeds[:1])
	require.NoError(t, err)
	system := true
	res, err := svc.List(ctx, ListFilter{IsSystem: &system})
	require.NoError(t, err)
	sys := res.Items[0]

	err = svc.Delete(ctx, sys.ID, sys.Version, false)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	err = svc.Delete(ctx, sys.ID, sys.Version, true)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	tmpl, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	err = svc.Delete(ctx, tmpl.ID, 7, false)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, svc.Delete(ctx, tmpl.ID, 1, false))
	_, err = svc.Get(ctx, tmpl.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	enabled, err := svc.ListEnabled(ctx)
	require.NoError(t, err)
	for _, e := range enabled {
		assert.NotEqual(t, tmpl.ID, e.ID)
	}

	withDeleted, err := svc.List(ctx, ListFilter{IncludeDeleted: true, IsSystem: new(bool)})
	require.NoError(t, err)
	require.Len(t, withDeleted.Items, 1)
	assert.Equal(t, 2, withDeleted.Items[0].Version)

	require.NoError(t, svc.Delete(ctx, tmpl.ID, 2, true))
	_, err = svc.GetVersion(ctx, tmpl.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestServiceRecordUsageKeepsVersion(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	tmpl, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.RecordUsage(ctx, tmpl.ID)
		require.NoError(t, err)
	}
	got, err := svc.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.UsageCount)
	assert.Equal(t, 1, got.Version)

	updated, err := svc.Update(ctx, tmpl.ID, Patch{Version: 1, Notes: strPtr("x")})
	require.NoError(t, err)
	assert.EqualValues(t, 3, updated.UsageCount)

	_, err = svc.RecordUsage(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestServiceSetStatus(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	tmpl, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)

	disabled, err := svc.SetStatus(ctx, tmpl.ID, 1, StatusDisabled)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, disabled.Status)
	assert.Equal(t, 2, disabled.Version)

	enabled, err := svc.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	_, err = svc.SetStatus(ctx, tmpl.ID, 1, StatusEnabled)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestServiceEnableRequiresActiveSubject(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	in := sampleInput()
	in.Status = StatusDisabled
	off := false
	for i := range in.Subjects {
		in.Subjects[i].IsActive = &off
	}
	tmpl, err := svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, tmpl.ID, 1, StatusEnabled)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestServiceGetVersionFromSnapshots(t *testing.T) {
	snaps := NewMemorySnapshotter()
	svc := newTestService(nil, WithSnapshotter(snaps))
	ctx := context.Background()
	tmpl, err := svc.Create(ctx, sampleInput())
	require.NoError(t, err)
	_, err = svc.Update(ctx, tmpl.ID, Patch{Version: 1, Name: strPtr("Renamed")})
	require.NoError(t, err)

	v1, err := svc.GetVersion(ctx, tmpl.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Post-event follow up", v1.Name)

	v2, err := svc.GetVersion(ctx, tmpl.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", v2.Name)

	_, err = svc.GetVersion(ctx, tmpl.ID, 3)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestServiceListFuzzyAndPaging(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	for _, name := range []string{"Booth follow up", "Webinar invite", "Conference follow up", "Product overview"} {
		in := sampleInput()
		in.Name = name
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 4, all.Total)
	assert.Equal(t, "Booth follow up", all.Items[0].Name)

	matched, err := svc.List(ctx, ListFilter{Query: "follow"})
	require.NoError(t, err)
	assert.Equal(t, 2, matched.Total)
	for _, item := range matched.Items {
		assert.Contains(t, item.Name, "follow up")
	}

	page, err := svc.List(ctx, ListFilter{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Webinar invite", page.Items[0].Name)

	persona, err := svc.List(ctx, ListFilter{Persona: "VP_MARKETING"})
	require.NoError(t, err)
	assert.Equal(t, 4, persona.Total)
}

func TestServiceEnsureSystemTemplatesIsIdempotent(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	seeds, err := LoadSeeds("")
	require.NoError(t, err)
	require.NotEmpty(t, seeds)

	created, err := svc.EnsureSystemTemplates(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, len(seeds), created)

	created, err = svc.EnsureSystemTemplates(ctx, seeds)
	require.NoError(t, err)
	assert.Zero(t, created)
}
