package utils

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func contextWithInt(t *testing.T, name string, value int) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.Int(name, value, "")
	return cli.NewContext(nil, set, nil)
}

func TestResolvedAPIPortDefaultsToP2PPortPlusOne(t *testing.T) {
	c := contextWithInt(t, APIPortFlag.Name, 0)
	require.Equal(t, 6001, ResolvedAPIPort(c, 6000))
}

func TestResolvedAPIPortHonorsExplicitValue(t *testing.T) {
	c := contextWithInt(t, APIPortFlag.Name, 9090)
	require.Equal(t, 9090, ResolvedAPIPort(c, 6000))
}

func TestResolvedStratumBasePortDefaultsToP2PPortPlus2000(t *testing.T) {
	c := contextWithInt(t, StratumBasePortFlag.Name, 0)
	require.Equal(t, 8000, ResolvedStratumBasePort(c, 6000))
}

func TestResolvedStratumBasePortHonorsExplicitValue(t *testing.T) {
	c := contextWithInt(t, StratumBasePortFlag.Name, 4200)
	require.Equal(t, 4200, ResolvedStratumBasePort(c, 6000))
}
