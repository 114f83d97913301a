package killmail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverrideArmAndConsume(t *testing.T) {
	o := NewOverride(5 * time.Minute)
	assert.Equal(t, OverrideDisabled, o.State())

	o.Arm(OverrideArmedSystem)
	assert.Equal(t, OverrideArmedSystem, o.ConsumeIfArmed())
	assert.Equal(t, OverrideDisabled, o.State(), "consuming clears the armed state")
}

func TestOverrideExpiresOnTimeout(t *testing.T) {
	o := NewOverride(10 * time.Millisecond)
	fakeNow := time.Now()
	o.now = func() time.Time { return fakeNow }

	o.Arm(OverrideArmedCharacter)
	fakeNow = fakeNow.Add(20 * time.Millisecond)

	assert.Equal(t, OverrideDisabled, o.ConsumeIfArmed(), "expired override must not be consumable")
}

func TestOverrideDisabledArmIsNoop(t *testing.T) {
	o := NewOverride(time.Minute)
	o.Arm(OverrideDisabled)
	assert.Equal(t, OverrideDisabled, o.State())
}
