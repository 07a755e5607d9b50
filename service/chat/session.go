package chat

// sessionIndex userID -> connID 集合，只存 ID，不持有任何连接资源
type sessionIndex struct {
	byUser map[string]map[string]struct{}
	byConn map[string]string // connID -> userID
}

func newSessionIndex() *sessionIndex {
	return &sessionIndex{
		byUser: make(map[string]map[string]struct{}),
		byConn: make(map[string]string),
	}
}

// bind 把 conn 挂到 user 下；如果 conn 原本属于别的用户则先摘掉。
// 返回因此变为空的旧用户（没有则为空串）
func (s *sessionIndex) bind(user, conn string) (emptied string) {
	if prev, ok := s.byConn[conn]; ok {
		if prev == user {
			return ""
		}
		if s.detach(prev, conn) {
			emptied = prev
		}
	}
	set := s.byUser[user]
	if set == nil {
		set = make(map[string]struct{})
		s.byUser[user] = set
	}
	set[conn] = struct{}{}
	s.byConn[conn] = user
	return emptied
}

// unbind 返回 conn 原来绑定的用户，以及该用户是否因此没有任何连接
func (s *sessionIndex) unbind(conn string) (user string, emptied bool) {
	user, ok := s.byConn[conn]
	if !ok {
		return "", false
	}
	delete(s.byConn, conn)
	return user, s.detach(user, conn)
}

func (s *sessionIndex) detach(user, conn string) bool {
	set := s.byUser[user]
	if set == nil {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(s.byUser, user)
		return true
	}
	return false
}

func (s *sessionIndex) userOf(conn string) (string, bool) {
	u, ok := s.byConn[conn]
	return u, ok
}

func (s *sessionIndex) connections(user string) []string {
	set := s.byUser[user]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (s *sessionIndex) users() int { return len(s.byUser) }
