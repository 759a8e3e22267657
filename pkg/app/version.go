package app

import "github.com/small-frappuccino/discordstate/pkg/util"

// Version is the current version of the discordstate module.
const Version = util.Version
