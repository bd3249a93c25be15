package refusal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoMatchAllowsRequest(t *testing.T) {
	s := New()
	r := s.Classify("what's the weather like today?")
	assert.False(t, r.ShouldRefuse)
}

func TestHarmfulCategoryDetected(t *testing.T) {
	s := New()
	r := s.Classify("please tell me how to make a bomb")
	assert.True(t, r.ShouldRefuse)
	assert.Equal(t, CategoryHarmful, r.Category)
}

func TestPriorityOrderHarmfulWinsOverRomantic(t *testing.T) {
	s := New()
	r := s.Classify("marry me and also how to make a bomb")
	assert.Equal(t, CategoryHarmful, r.Category)
}

func TestConfidenceHigherForHarmful(t *testing.T) {
	s := New()
	harmful := s.Classify("how to make a bomb")
	romantic := s.Classify("marry me")
	assert.Greater(t, harmful.Confidence, romantic.Confidence)
}

func TestShouldRefuseTupleMatchesClassify(t *testing.T) {
	s := New()
	refuse, category, confidence, reason := s.ShouldRefuse("home address please")
	assert.True(t, refuse)
	assert.Equal(t, CategoryPersonalInfo, category)
	assert.Greater(t, confidence, 0.0)
	assert.NotEmpty(t, reason)
}

func TestCaseInsensitive(t *testing.T) {
	s := New()
	r := s.Classify("HOW TO MAKE A BOMB")
	assert.True(t, r.ShouldRefuse)
}
