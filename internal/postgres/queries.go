package postgres

const roomColumns = `id, name, description, kind, is_private, created_by, max_members, is_active, scope_key, created_at, updated_at`

const messageColumns = `id, room_id, sender_id, text, kind, file_url, reply_to_id, client_id, is_edited, edited_at, is_deleted, created_at`

const (
	queryCreateRoom = `
		INSERT INTO rooms (name, description, kind, is_private, created_by, max_members)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + roomColumns

	queryGetRoom = `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	queryRoomsByIDs = `SELECT ` + roomColumns + ` FROM rooms WHERE id = ANY($1) AND is_active`

	// the no-op update makes RETURNING yield the existing row on conflict.
	queryEnsureScopedRoom = `
		INSERT INTO rooms (name, description, kind, is_private, created_by, max_members, scope_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (scope_key) DO UPDATE SET scope_key = EXCLUDED.scope_key
		RETURNING ` + roomColumns

	queryCreateDirect = `SELECT create_direct_chat($1, $2)`

	queryDeleteRoom = `DELETE FROM rooms WHERE id = $1`

	queryDeleteRoomReactions = `
		DELETE FROM message_reactions
		WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)`
	queryDeleteRoomMessages = `DELETE FROM messages WHERE room_id = $1`
	queryDeleteRoomMembers  = `DELETE FROM room_members WHERE room_id = $1`
	queryDeleteRoomTyping   = `DELETE FROM typing_indicators WHERE room_id = $1`
)

const (
	queryAddMembers = `
		INSERT INTO room_members (room_id, user_id, is_admin)
		SELECT $1, t.user_id, t.is_admin
		FROM unnest($2::uuid[], $3::bool[]) AS t(user_id, is_admin)
		ON CONFLICT (room_id, user_id) DO NOTHING`

	queryGetMember = `
		SELECT room_id, user_id, is_admin, joined_at
		FROM room_members
		WHERE room_id = $1 AND user_id = $2`

	queryListMembers = `
		SELECT room_id, user_id, is_admin, joined_at
		FROM room_members
		WHERE room_id = $1
		ORDER BY joined_at ASC, user_id ASC`

	queryMemberRoomIDs = `SELECT room_id FROM room_members WHERE user_id = $1`

	queryCountMembers = `SELECT count(*) FROM room_members WHERE room_id = $1`
)

const (
	// one pass: membership, room, member count and the newest visible message.
	queryJoinedRooms = `
		SELECT r.id, r.name, r.description, r.kind, r.is_private, r.created_by, r.max_members,
		       r.is_active, r.scope_key, r.created_at, r.updated_at,
		       mc.member_count,
		       lm.sender_id, lm.sender_name, lm.text, lm.created_at
		FROM room_members AS me
		JOIN rooms AS r ON r.id = me.room_id
		CROSS JOIN LATERAL (
			SELECT count(*) AS member_count FROM room_members AS m WHERE m.room_id = r.id
		) AS mc
		LEFT JOIN LATERAL (
			SELECT msg.sender_id, u.display_name AS sender_name, msg.text, msg.created_at
			FROM messages AS msg
			LEFT JOIN users AS u ON u.id = msg.sender_id
			WHERE msg.room_id = r.id AND NOT msg.is_deleted
			ORDER BY msg.created_at DESC, msg.id DESC
			LIMIT 1
		) AS lm ON true
		WHERE me.user_id = $1 AND r.is_active`

	queryLastMessage = `
		SELECT sender_id, text, created_at
		FROM messages
		WHERE room_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
)

const (
	// a retried send with the same client id returns the stored row.
	queryInsertMessage = `
		INSERT INTO messages (room_id, sender_id, text, kind, file_url, reply_to_id, client_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sender_id, client_id) WHERE client_id IS NOT NULL
		DO UPDATE SET client_id = EXCLUDED.client_id
		RETURNING ` + messageColumns

	queryGetMessage = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	queryPageMessages = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`

	queryEditMessage = `
		UPDATE messages
		SET text = $3, is_edited = true, edited_at = now()
		WHERE id = $1 AND sender_id = $2 AND NOT is_deleted
		RETURNING ` + messageColumns

	querySoftDeleteMessage = `
		UPDATE messages
		SET is_deleted = true
		WHERE id = $1 AND sender_id = $2
		RETURNING ` + messageColumns
)

const (
	// xmax = 0 only for freshly inserted tuples.
	queryUpsertTyping = `
		INSERT INTO typing_indicators (room_id, user_id, started_at)
		VALUES ($1, $2, now())
		ON CONFLICT (room_id, user_id) DO UPDATE SET started_at = now()
		RETURNING user_id, room_id, started_at, (xmax = 0) AS inserted`

	queryDeleteTyping = `
		DELETE FROM typing_indicators
		WHERE room_id = $1 AND user_id = $2
		RETURNING user_id, room_id, started_at`

	queryDeleteStaleTyping = `
		DELETE FROM typing_indicators
		WHERE started_at < now() - make_interval(secs => $1)
		RETURNING user_id, room_id, started_at`

	queryListTyping = `
		SELECT user_id, room_id, started_at
		FROM typing_indicators
		WHERE room_id = $1
		ORDER BY started_at ASC`
)

const (
	queryInsertNotification = `
		INSERT INTO notifications (user_id, title, body, target_url, category)
		VALUES ($1, $2, $3, $4, $5)`

	queryProfiles = `SELECT id, display_name, avatar_url FROM users WHERE id = ANY($1)`
)
