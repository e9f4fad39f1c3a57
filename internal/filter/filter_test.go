package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleetpro/netfleet/internal/inventory"
)

func fleet() []inventory.Device {
	return []inventory.Device{
		{Hostname: "a", Site: "x", Region: "west", Platform: "eos", Tags: []string{"iac"}},
		{Hostname: "b", Site: "x", Region: "west", Platform: "ios"},
		{Hostname: "c", Site: "y", Region: "east", Platform: "eos", Tags: []string{"iac", "core"}},
		{Hostname: "d", Site: "z", Region: "east", Platform: "fortinet"},
	}
}

func names(ds []inventory.Device) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Hostname
	}
	return out
}

func TestSelectBasic(t *testing.T) {
	devs := fleet()
	assert.Equal(t, []string{"a", "b"}, names(Select(devs, BySite("x"))))
	assert.Equal(t, []string{"c", "d"}, names(Select(devs, ByRegion("east"))))
	assert.Equal(t, []string{"a", "c"}, names(Select(devs, ByTag("iac"))))
	assert.Equal(t, []string{"d"}, names(Select(devs, ByHost("d"))))
	assert.Equal(t, []string{"a", "c"}, names(Select(devs, ByPlatform("EOS"))), "平台名大小写不敏感")
}

func TestSelectZeroValueSelectsAll(t *testing.T) {
	var p Predicate
	assert.Equal(t, []string{"a", "b", "c", "d"}, names(Select(fleet(), p)))
	assert.Equal(t, "all", p.String())
}

func TestSelectNoMatchIsEmpty(t *testing.T) {
	got := Select(fleet(), BySite("nowhere"))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCombinators(t *testing.T) {
	devs := fleet()
	p := And(ByPlatform("eos"), ByTag("iac"), Or(BySite("x"), BySite("y")))
	assert.Equal(t, []string{"a", "c"}, names(Select(devs, p)))
	assert.Equal(t, []string{"b", "d"}, names(Select(devs, Not(ByPlatform("eos")))))
	assert.Empty(t, Select(devs, Or()))
	assert.Len(t, Select(devs, And()), 4)
	assert.Equal(t, "(platform=eos & tag=iac & (site=x | site=y))", p.String())
}

func TestSelectSubsetOrderedNoDuplicates(t *testing.T) {
	devs := append(fleet(), inventory.Device{Hostname: "a", Site: "x"})
	got := Select(devs, BySite("x"))
	assert.Equal(t, []string{"a", "b"}, names(got), "重复主机只保留首次出现")
	for _, d := range got {
		assert.True(t, BySite("x").Match(d))
	}
}

func TestByAttr(t *testing.T) {
	p, err := ByAttr("Region", "west")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(Select(fleet(), p)))

	_, err = ByAttr("color", "blue")
	assert.True(t, errors.Is(err, ErrUnknownAttribute))
	assert.Contains(t, Attributes(), "site")
}

func TestFlagsPredicate(t *testing.T) {
	f := Flags{Sites: []string{"x,y"}, Platforms: []string{"eos"}}
	assert.Equal(t, []string{"a", "c"}, names(Select(fleet(), f.Predicate())))
	assert.Equal(t, "all", Flags{}.Predicate().String())
	assert.Equal(t, "host=b", Flags{Hosts: []string{" b "}}.Predicate().String())
}
