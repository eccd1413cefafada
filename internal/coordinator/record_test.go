package coordinator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mylxsw/krea-server/internal/coordinator"
)

func TestGenerationParamsNormalizeDefaults(t *testing.T) {
	params := coordinator.GenerationParams{Prompt: "a red fox"}
	assert.NoError(t, params.Normalize())

	assert.Equal(t, coordinator.DefaultSteps, params.Steps)
	assert.Equal(t, coordinator.DefaultGuidance, params.Guidance)
	assert.Equal(t, coordinator.DefaultWidth, params.Width)
	assert.Equal(t, coordinator.DefaultHeight, params.Height)
	assert.Equal(t, 1, params.NumImages)
	assert.EqualValues(t, -1, params.Seed)
}

func TestGenerationParamsNormalizeRanges(t *testing.T) {
	{
		params := coordinator.GenerationParams{Prompt: "x", Steps: 19}
		assert.Error(t, params.Normalize())
	}
	{
		params := coordinator.GenerationParams{Prompt: "x", Steps: 51}
		assert.Error(t, params.Normalize())
	}
	{
		params := coordinator.GenerationParams{Prompt: "x", Guidance: 10.5}
		assert.Error(t, params.Normalize())
	}
	{
		params := coordinator.GenerationParams{Prompt: "x", Seed: 1000000000}
		assert.Error(t, params.Normalize())
	}
	{
		params := coordinator.GenerationParams{Prompt: "x", Width: 256}
		assert.Error(t, params.Normalize())
	}
	{
		params := coordinator.GenerationParams{Prompt: "x", NumImages: 5}
		assert.Error(t, params.Normalize())
	}
}

func TestGenerationParamsNormalizeSnapsDimensions(t *testing.T) {
	params := coordinator.GenerationParams{Prompt: "x", Width: 1001, Height: 777}
	assert.NoError(t, params.Normalize())

	assert.Equal(t, 1000, params.Width)
	assert.Equal(t, 776, params.Height)
}

func TestValidatePrompt(t *testing.T) {
	assert.Error(t, coordinator.ValidatePrompt(""))
	assert.Error(t, coordinator.ValidatePrompt("   "))
	assert.Error(t, coordinator.ValidatePrompt(strings.Repeat("甲", 1001)))

	assert.NoError(t, coordinator.ValidatePrompt("a red fox"))
	assert.NoError(t, coordinator.ValidatePrompt(strings.Repeat("甲", 1000)))
}
