package model

const (
	GroupUserCollection = "group_user"
	GroupUserTable      = "group_users"
)

// 群角色
const (
	GroupRoleOwner  int32 = 1
	GroupRoleAdmin  int32 = 2
	GroupRoleMember int32 = 3
)

// GroupUser 群成员记录：一条记录对应一个群 + 一个用户
type GroupUser struct {
	ID        string  `json:"id" bson:"id"`
	GroupID   string  `json:"group_id" bson:"group_id"`
	UserID    string  `json:"user_id" bson:"user_id"`
	Role      int32   `json:"role" bson:"role"` // 1=群主,2=管理员,3=普通成员
	InviteID  *string `json:"invite_id,omitempty" bson:"invite_id,omitempty"`
	CreatedAt int64   `json:"created_at" bson:"created_at"`
}
