package state

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// eventGuild resolves the guild_id of an event payload. A nil guild with a
// nil error means the guild is unknown and the event was discarded.
func (s *Store) eventGuild(event string, raw json.RawMessage) (*entity.Guild, error) {
	guildID, err := requireID(raw, "guild_id")
	if err != nil {
		return nil, err
	}
	g := s.guilds[guildID]
	if g == nil {
		s.discard(event, "guild", guildID)
	}
	return g, nil
}

// addGuild caches g, replacing any guild with the same ID, and indexes its
// emojis and stickers.
func (s *Store) addGuild(g *entity.Guild) {
	if old := s.guilds[g.ID()]; old != nil && old != g {
		s.unindexAssets(old.Emojis(), old.Stickers())
	}
	setEntry(s, s.guilds, g.ID(), g)
	s.indexAssets(g.Emojis(), g.Stickers())
	s.metrics.CacheSize("guilds", len(s.guilds))
}

func (s *Store) removeGuild(g *entity.Guild) {
	dropEntry(s, s.guilds, g.ID())
	s.unindexAssets(g.Emojis(), g.Stickers())
	s.metrics.CacheSize("guilds", len(s.guilds))
}

func (s *Store) indexAssets(emojis []*entity.Emoji, stickers []*entity.Sticker) {
	for _, e := range emojis {
		setEntry(s, s.emojis, e.ID(), e)
	}
	for _, st := range stickers {
		setEntry(s, s.stickers, st.ID(), st)
	}
}

func (s *Store) unindexAssets(emojis []*entity.Emoji, stickers []*entity.Sticker) {
	for _, e := range emojis {
		dropEntry(s, s.emojis, e.ID())
	}
	for _, st := range stickers {
		dropEntry(s, s.stickers, st.ID())
	}
}

// loadGuild applies a full guild payload to a cached guild, keeping the
// flat emoji and sticker registries in step.
func (s *Store) loadGuild(g *entity.Guild, raw json.RawMessage) error {
	emojis, stickers := g.Emojis(), g.Stickers()
	if err := g.Load(raw); err != nil {
		return err
	}
	s.unindexAssets(emojis, stickers)
	s.indexAssets(g.Emojis(), g.Stickers())
	return nil
}

func (s *Store) parseGuildCreate(raw json.RawMessage) error {
	guildID, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	g := s.guilds[guildID]
	unavailable := gjson.GetBytes(raw, "unavailable")

	if unavailable.Bool() {
		if g != nil {
			g.Unavailable = true
			s.dispatch("guild_unavailable", g)
			return nil
		}
		g, err = entity.NewGuild(s, raw)
		if err != nil {
			return err
		}
		s.addGuild(g)
		s.dispatch("guild_join", g)
		return nil
	}

	joined := g == nil
	if g != nil && unavailable.Exists() {
		// An available GUILD_CREATE for a cached guild completes it.
		g.Unavailable = false
		if err := s.loadGuild(g, raw); err != nil {
			return err
		}
	} else {
		if g, err = entity.NewGuild(s, raw); err != nil {
			return err
		}
		s.addGuild(g)
	}

	if joined {
		s.dispatch("guild_join", g)
	} else {
		s.dispatch("guild_available", g)
	}
	return nil
}

func (s *Store) parseGuildUpdate(raw json.RawMessage) error {
	guildID, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	g := s.guilds[guildID]
	if g == nil {
		s.discard("GUILD_UPDATE", "guild", guildID)
		return nil
	}
	before := g.Snapshot()
	if err := s.loadGuild(g, raw); err != nil {
		return err
	}
	s.dispatch("guild_update", before, g)
	return nil
}

func (s *Store) parseGuildDelete(raw json.RawMessage) error {
	guildID, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	g := s.guilds[guildID]
	if g == nil {
		s.discard("GUILD_DELETE", "guild", guildID)
		return nil
	}
	if gjson.GetBytes(raw, "unavailable").Bool() {
		g.Unavailable = true
		s.dispatch("guild_unavailable", g)
		return nil
	}

	dropped := s.messages.RemoveFunc(func(m *entity.Message) bool { return m.GuildID == guildID })
	s.removeGuild(g)
	s.log.Info("Guild removed", "guildID", guildID, "droppedMessages", dropped)
	s.dispatch("guild_remove", g)
	return nil
}

func (s *Store) parseGuildMemberAdd(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_MEMBER_ADD", raw)
	if g == nil {
		return err
	}
	m, err := entity.NewMember(s, g.ID(), raw)
	if err != nil {
		return err
	}
	g.AddMember(m)
	g.AdjustMemberCount(1)
	s.dispatch("member_join", m)
	return nil
}

func (s *Store) parseGuildMemberRemove(raw json.RawMessage) error {
	u, err := s.storeUser(field(raw, "user"), true)
	if err != nil {
		return err
	}
	ev := &entity.RawMemberRemoveEvent{GuildID: snowflake.Get(raw, "guild_id"), User: u}

	if g := s.guilds[ev.GuildID]; g != nil {
		g.AdjustMemberCount(-1)
		if m := g.Member(u.ID()); m != nil {
			g.RemoveMember(u.ID())
			ev.Member = m
			s.dispatch("member_remove", m)
		}
	} else {
		s.discard("GUILD_MEMBER_REMOVE", "guild", ev.GuildID)
	}
	s.dispatch("raw_member_remove", ev)
	return nil
}

func (s *Store) parseGuildMemberUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_MEMBER_UPDATE", raw)
	if g == nil {
		return err
	}
	userRaw := field(raw, "user")
	userID, err := requireID(userRaw, "id")
	if err != nil {
		return err
	}

	m := g.Member(userID)
	if m == nil {
		s.log.Debug("GUILD_MEMBER_UPDATE referencing an unknown member ID. Caching it.", "userID", userID)
		m, err = entity.NewMember(s, g.ID(), raw)
		if err != nil {
			return err
		}
		g.AddMember(m)
		return nil
	}

	before := m.Snapshot()
	if err := m.Update(raw); err != nil {
		return err
	}
	if _, err := s.storeUser(userRaw, true); err != nil {
		return err
	}
	s.dispatch("member_update", before, m)
	return nil
}

func (s *Store) parseGuildEmojisUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_EMOJIS_UPDATE", raw)
	if g == nil {
		return err
	}
	before := g.Emojis()
	after := make([]*entity.Emoji, 0, len(before))
	for _, er := range array(raw, "emojis") {
		e, err := entity.NewEmoji(g.ID(), er)
		if err != nil {
			return err
		}
		after = append(after, e)
	}
	s.unindexAssets(before, nil)
	g.SetEmojis(after)
	s.indexAssets(after, nil)
	s.dispatch("guild_emojis_update", g, before, g.Emojis())
	return nil
}

func (s *Store) parseGuildStickersUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_STICKERS_UPDATE", raw)
	if g == nil {
		return err
	}
	before := g.Stickers()
	after := make([]*entity.Sticker, 0, len(before))
	for _, sr := range array(raw, "stickers") {
		st, err := entity.NewSticker(g.ID(), sr)
		if err != nil {
			return err
		}
		after = append(after, st)
	}
	s.unindexAssets(nil, before)
	g.SetStickers(after)
	s.indexAssets(nil, after)
	s.dispatch("guild_stickers_update", g, before, g.Stickers())
	return nil
}

func (s *Store) parseGuildBanAdd(raw json.RawMessage) error {
	g := s.guilds[snowflake.Get(raw, "guild_id")]
	userRaw := field(raw, "user")
	if g == nil || userRaw == nil {
		return nil
	}
	u, err := entity.NewUser(s, userRaw)
	if err != nil {
		return err
	}
	if m := g.Member(u.ID()); m != nil {
		s.dispatch("member_ban", g, m)
		return nil
	}
	s.dispatch("member_ban", g, u)
	return nil
}

func (s *Store) parseGuildBanRemove(raw json.RawMessage) error {
	g := s.guilds[snowflake.Get(raw, "guild_id")]
	userRaw := field(raw, "user")
	if g == nil || userRaw == nil {
		return nil
	}
	u, err := s.storeUser(userRaw, true)
	if err != nil {
		return err
	}
	s.dispatch("member_unban", g, u)
	return nil
}

func (s *Store) parseGuildRoleCreate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_ROLE_CREATE", raw)
	if g == nil {
		return err
	}
	r, err := entity.NewRole(g.ID(), field(raw, "role"))
	if err != nil {
		return err
	}
	g.AddRole(r)
	s.dispatch("guild_role_create", r)
	return nil
}

func (s *Store) parseGuildRoleUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_ROLE_UPDATE", raw)
	if g == nil {
		return err
	}
	roleRaw := field(raw, "role")
	roleID, err := requireID(roleRaw, "id")
	if err != nil {
		return err
	}
	r := g.Role(roleID)
	if r == nil {
		return nil
	}
	before := r.Snapshot()
	if err := r.Update(roleRaw); err != nil {
		return err
	}
	s.dispatch("guild_role_update", before, r)
	return nil
}

func (s *Store) parseGuildRoleDelete(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_ROLE_DELETE", raw)
	if g == nil {
		return err
	}
	roleID, err := requireID(raw, "role_id")
	if err != nil {
		return err
	}
	if r := g.RemoveRole(roleID); r != nil {
		s.dispatch("guild_role_delete", r)
	}
	return nil
}

func (s *Store) parseStageInstanceCreate(raw json.RawMessage) error {
	g, err := s.eventGuild("STAGE_INSTANCE_CREATE", raw)
	if g == nil {
		return err
	}
	si, err := entity.NewStageInstance(raw)
	if err != nil {
		return err
	}
	g.AddStageInstance(si)
	s.dispatch("stage_instance_create", si)
	return nil
}

func (s *Store) parseStageInstanceUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("STAGE_INSTANCE_UPDATE", raw)
	if g == nil {
		return err
	}
	id, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	si := g.StageInstance(id)
	if si == nil {
		s.discard("STAGE_INSTANCE_UPDATE", "stage instance", id)
		return nil
	}
	before := si.Snapshot()
	if err := si.Update(raw); err != nil {
		return err
	}
	s.dispatch("stage_instance_update", before, si)
	return nil
}

func (s *Store) parseStageInstanceDelete(raw json.RawMessage) error {
	g, err := s.eventGuild("STAGE_INSTANCE_DELETE", raw)
	if g == nil {
		return err
	}
	if si := g.PopStageInstance(snowflake.Get(raw, "id")); si != nil {
		s.dispatch("stage_instance_delete", si)
	}
	return nil
}

func (s *Store) parseScheduledEventCreate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_SCHEDULED_EVENT_CREATE", raw)
	if g == nil {
		return err
	}
	ev, err := entity.NewScheduledEvent(raw)
	if err != nil {
		return err
	}
	g.AddScheduledEvent(ev)
	s.dispatch("scheduled_event_create", ev)
	return nil
}

func (s *Store) parseScheduledEventUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_SCHEDULED_EVENT_UPDATE", raw)
	if g == nil {
		return err
	}
	id, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	ev := g.ScheduledEvent(id)
	if ev == nil {
		s.discard("GUILD_SCHEDULED_EVENT_UPDATE", "scheduled event", id)
		return nil
	}
	before := ev.Snapshot()
	if err := ev.Update(raw); err != nil {
		return err
	}
	s.dispatch("scheduled_event_update", before, ev)
	return nil
}

func (s *Store) parseScheduledEventDelete(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_SCHEDULED_EVENT_DELETE", raw)
	if g == nil {
		return err
	}
	ev := g.PopScheduledEvent(snowflake.Get(raw, "id"))
	if ev == nil {
		if ev, err = entity.NewScheduledEvent(raw); err != nil {
			return err
		}
	}
	s.dispatch("scheduled_event_delete", ev)
	return nil
}

// scheduledEventUser resolves the event and cached user of a scheduled
// event user add or remove.
func (s *Store) scheduledEventUser(event string, raw json.RawMessage) (*entity.ScheduledEvent, *entity.User, error) {
	g, err := s.eventGuild(event, raw)
	if g == nil {
		return nil, nil, err
	}
	eventID := snowflake.Get(raw, "guild_scheduled_event_id")
	ev := g.ScheduledEvent(eventID)
	if ev == nil {
		s.discard(event, "scheduled event", eventID)
		return nil, nil, nil
	}
	userID := snowflake.Get(raw, "user_id")
	u := s.users[userID]
	if u == nil {
		s.discard(event, "user", userID)
		return nil, nil, nil
	}
	return ev, u, nil
}

func (s *Store) parseScheduledEventUserAdd(raw json.RawMessage) error {
	ev, u, err := s.scheduledEventUser("GUILD_SCHEDULED_EVENT_USER_ADD", raw)
	if ev == nil {
		return err
	}
	ev.AddUser(u)
	s.dispatch("scheduled_event_user_add", ev, u)
	return nil
}

func (s *Store) parseScheduledEventUserRemove(raw json.RawMessage) error {
	ev, u, err := s.scheduledEventUser("GUILD_SCHEDULED_EVENT_USER_REMOVE", raw)
	if ev == nil {
		return err
	}
	ev.RemoveUser(u.ID())
	s.dispatch("scheduled_event_user_remove", ev, u)
	return nil
}

func (s *Store) parseSoundboardSoundCreate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_SOUNDBOARD_SOUND_CREATE", raw)
	if g == nil {
		return err
	}
	sound, err := entity.NewSoundboardSound(g.ID(), raw)
	if err != nil {
		return err
	}
	g.AddSoundboardSound(sound)
	s.dispatch("soundboard_sound_create", sound)
	return nil
}

func (s *Store) updateSound(event string, g *entity.Guild, raw json.RawMessage) error {
	id, err := requireID(raw, "sound_id")
	if err != nil {
		return err
	}
	sound := g.SoundboardSound(id)
	if sound == nil {
		s.discard(event, "sound", id)
		return nil
	}
	before := sound.Snapshot()
	if err := sound.Update(raw); err != nil {
		return err
	}
	s.dispatch("soundboard_sound_update", before, sound)
	return nil
}

func (s *Store) parseSoundboardSoundUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_SOUNDBOARD_SOUND_UPDATE", raw)
	if g == nil {
		return err
	}
	return s.updateSound("GUILD_SOUNDBOARD_SOUND_UPDATE", g, raw)
}

func (s *Store) parseSoundboardSoundsUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_SOUNDBOARD_SOUNDS_UPDATE", raw)
	if g == nil {
		return err
	}
	for _, sr := range array(raw, "soundboard_sounds") {
		if err := s.updateSound("GUILD_SOUNDBOARD_SOUNDS_UPDATE", g, sr); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) parseSoundboardSoundDelete(raw json.RawMessage) error {
	g, err := s.eventGuild("GUILD_SOUNDBOARD_SOUND_DELETE", raw)
	if g == nil {
		return err
	}
	id, err := requireID(raw, "sound_id")
	if err != nil {
		return err
	}
	sound := g.SoundboardSound(id)
	if sound == nil {
		s.discard("GUILD_SOUNDBOARD_SOUND_DELETE", "sound", id)
		return nil
	}
	g.RemoveSoundboardSound(id)
	s.dispatch("soundboard_sound_delete", sound)
	return nil
}
