package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "train", "match", "migrate"}, names)

	flag := root.PersistentFlags().Lookup("env-file")
	if assert.NotNil(t, flag) {
		assert.Equal(t, ".env", flag.DefValue)
	}
}
