package hostfunc

// KV store requests, as sent by guests.

type KVGetRequest struct {
	Key     string `json:"key"`
	Default any    `json:"default,omitempty"`
}

type KVDeleteRequest struct {
	Key string `json:"key"`
}
