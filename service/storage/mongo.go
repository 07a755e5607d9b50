package storage

import (
	"context"

	"ChatHub/logger"
	"ChatHub/module/chat/model"
	"ChatHub/service/mgo"
	"ChatHub/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const userCollection = "user"

// Mongo 消息落 message 集合，群成员查 group_user
type Mongo struct {
	mgr *mgo.Manager
}

func NewMongo(mgr *mgo.Manager) *Mongo { return &Mongo{mgr: mgr} }

func (g *Mongo) SaveMessage(ctx context.Context, m *model.ChatMessage) error {
	db, err := g.mgr.DB()
	if err != nil {
		return err
	}
	if _, err := db.Collection(model.MessageCollection).InsertOne(ctx, m); err != nil {
		return errs.WrapMsg(err, "insert message", "msg_id", m.MsgID)
	}
	// 发送方活跃时间，失败不影响消息
	filter, update := lastActiveUpdate(m.FromUser, m.CreatedAt)
	if _, err := db.Collection(userCollection).UpdateOne(ctx, filter, update); err != nil {
		logger.Warn("[mongo] stamp last_active_time", zap.String("user_id", m.FromUser), zap.Error(err))
	}
	return nil
}

func (g *Mongo) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	db, err := g.mgr.DB()
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetProjection(bson.M{"user_id": 1, "_id": 0})
	cur, err := db.Collection(model.GroupUserCollection).Find(ctx, groupMembersFilter(groupID), opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find group members", "group_id", groupID)
	}
	defer cur.Close(ctx)

	var rows []model.GroupUser
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errs.WrapMsg(err, "decode group members", "group_id", groupID)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.UserID != "" {
			out = append(out, r.UserID)
		}
	}
	return out, nil
}

func groupMembersFilter(groupID string) bson.M {
	return bson.M{"group_id": groupID}
}

func lastActiveUpdate(userID string, ts int64) (bson.M, bson.M) {
	return bson.M{"user_id": userID}, bson.M{"$set": bson.M{"last_active_time": ts}}
}
