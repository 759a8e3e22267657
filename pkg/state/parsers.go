package state

// parserTable maps gateway event names to the handlers that fold them into
// the store.
func (s *Store) parserTable() map[string]parserFunc {
	return map[string]parserFunc{
		"READY":                s.parseReady,
		"READY_SUPPLEMENTAL":   s.parseReadySupplemental,
		"RESUMED":              s.parseResumed,
		"USER_UPDATE":          s.parseUserUpdate,
		"USER_SETTINGS_UPDATE": s.parseUserSettingsUpdate,
		"SESSIONS_REPLACE":     s.parseSessionsReplace,

		"MESSAGE_CREATE":                s.parseMessageCreate,
		"MESSAGE_DELETE":                s.parseMessageDelete,
		"MESSAGE_DELETE_BULK":           s.parseMessageDeleteBulk,
		"MESSAGE_UPDATE":                s.parseMessageUpdate,
		"MESSAGE_REACTION_ADD":          s.parseReactionAdd,
		"MESSAGE_REACTION_REMOVE":       s.parseReactionRemove,
		"MESSAGE_REACTION_REMOVE_ALL":   s.parseReactionRemoveAll,
		"MESSAGE_REACTION_REMOVE_EMOJI": s.parseReactionRemoveEmoji,

		"PRESENCE_UPDATE":   s.parsePresenceUpdate,
		"PRESENCES_REPLACE": s.parsePresencesReplace,

		"CHANNEL_CREATE":           s.parseChannelCreate,
		"CHANNEL_UPDATE":           s.parseChannelUpdate,
		"CHANNEL_UPDATE_PARTIAL":   s.parseChannelUpdatePartial,
		"CHANNEL_DELETE":           s.parseChannelDelete,
		"CHANNEL_PINS_UPDATE":      s.parseChannelPinsUpdate,
		"CHANNEL_RECIPIENT_ADD":    s.parseChannelRecipientAdd,
		"CHANNEL_RECIPIENT_REMOVE": s.parseChannelRecipientRemove,

		"THREAD_CREATE":         s.parseThreadCreate,
		"THREAD_UPDATE":         s.parseThreadUpdate,
		"THREAD_DELETE":         s.parseThreadDelete,
		"THREAD_LIST_SYNC":      s.parseThreadListSync,
		"THREAD_MEMBER_UPDATE":  s.parseThreadMemberUpdate,
		"THREAD_MEMBERS_UPDATE": s.parseThreadMembersUpdate,

		"GUILD_CREATE":          s.parseGuildCreate,
		"GUILD_UPDATE":          s.parseGuildUpdate,
		"GUILD_DELETE":          s.parseGuildDelete,
		"GUILD_MEMBER_ADD":      s.parseGuildMemberAdd,
		"GUILD_MEMBER_REMOVE":   s.parseGuildMemberRemove,
		"GUILD_MEMBER_UPDATE":   s.parseGuildMemberUpdate,
		"GUILD_EMOJIS_UPDATE":   s.parseGuildEmojisUpdate,
		"GUILD_STICKERS_UPDATE": s.parseGuildStickersUpdate,
		"GUILD_BAN_ADD":         s.parseGuildBanAdd,
		"GUILD_BAN_REMOVE":      s.parseGuildBanRemove,
		"GUILD_ROLE_CREATE":     s.parseGuildRoleCreate,
		"GUILD_ROLE_UPDATE":     s.parseGuildRoleUpdate,
		"GUILD_ROLE_DELETE":     s.parseGuildRoleDelete,

		"GUILD_SCHEDULED_EVENT_CREATE":      s.parseScheduledEventCreate,
		"GUILD_SCHEDULED_EVENT_UPDATE":      s.parseScheduledEventUpdate,
		"GUILD_SCHEDULED_EVENT_DELETE":      s.parseScheduledEventDelete,
		"GUILD_SCHEDULED_EVENT_USER_ADD":    s.parseScheduledEventUserAdd,
		"GUILD_SCHEDULED_EVENT_USER_REMOVE": s.parseScheduledEventUserRemove,

		"GUILD_SOUNDBOARD_SOUND_CREATE":  s.parseSoundboardSoundCreate,
		"GUILD_SOUNDBOARD_SOUND_UPDATE":  s.parseSoundboardSoundUpdate,
		"GUILD_SOUNDBOARD_SOUND_DELETE":  s.parseSoundboardSoundDelete,
		"GUILD_SOUNDBOARD_SOUNDS_UPDATE": s.parseSoundboardSoundsUpdate,

		"STAGE_INSTANCE_CREATE": s.parseStageInstanceCreate,
		"STAGE_INSTANCE_UPDATE": s.parseStageInstanceUpdate,
		"STAGE_INSTANCE_DELETE": s.parseStageInstanceDelete,

		"VOICE_STATE_UPDATE":          s.parseVoiceStateUpdate,
		"VOICE_CHANNEL_STATUS_UPDATE": s.parseVoiceChannelStatusUpdate,
		"TYPING_START":                s.parseTypingStart,

		"CALL_CREATE": s.parseCallCreate,
		"CALL_UPDATE": s.parseCallUpdate,
		"CALL_DELETE": s.parseCallDelete,

		"LOBBY_CREATE":             s.parseLobbyCreate,
		"LOBBY_UPDATE":             s.parseLobbyUpdate,
		"LOBBY_DELETE":             s.parseLobbyDelete,
		"LOBBY_MEMBER_ADD":         s.parseLobbyMemberAdd,
		"LOBBY_MEMBER_UPDATE":      s.lobbyMemberUpdate("LOBBY_MEMBER_UPDATE"),
		"LOBBY_MEMBER_CONNECT":     s.lobbyMemberUpdate("LOBBY_MEMBER_CONNECT"),
		"LOBBY_MEMBER_DISCONNECT":  s.lobbyMemberUpdate("LOBBY_MEMBER_DISCONNECT"),
		"LOBBY_MEMBER_REMOVE":      s.parseLobbyMemberRemove,
		"LOBBY_VOICE_STATE_UPDATE": s.parseLobbyVoiceStateUpdate,
		"LOBBY_MESSAGE_CREATE":     s.parseLobbyMessageCreate,
		"LOBBY_MESSAGE_UPDATE":     s.parseLobbyMessageUpdate,
		"LOBBY_MESSAGE_DELETE":     s.parseLobbyMessageDelete,

		"RELATIONSHIP_ADD":         s.parseRelationshipAdd,
		"RELATIONSHIP_UPDATE":      s.parseRelationshipUpdate,
		"RELATIONSHIP_REMOVE":      s.parseRelationshipRemove,
		"GAME_RELATIONSHIP_ADD":    s.parseGameRelationshipAdd,
		"GAME_RELATIONSHIP_REMOVE": s.parseGameRelationshipRemove,

		"SUBSCRIPTION_CREATE": s.parseSubscriptionCreate,
		"SUBSCRIPTION_UPDATE": s.parseSubscriptionUpdate,
		"SUBSCRIPTION_DELETE": s.parseSubscriptionDelete,

		"GAME_INVITE_CREATE":      s.parseGameInviteCreate,
		"GAME_INVITE_DELETE":      s.parseGameInviteDelete,
		"GAME_INVITE_DELETE_MANY": s.parseGameInviteDeleteMany,

		"STREAM_CREATE": s.parseStreamCreate,
		"STREAM_UPDATE": s.parseStreamUpdate,
		"STREAM_DELETE": s.parseStreamDelete,
	}
}
