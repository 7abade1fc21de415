package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoTaskRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("ensure indexes makes id unique", func(mt *mtest.T) {
		repo := NewMongoTaskRepository(mt.Client, "payouts", "")
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, repo.EnsureIndexes(context.Background()))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "createIndexes", started.CommandName)
		assert.Equal(mt, "process_tracker", started.Command.Lookup("createIndexes").StringValue())

		indexes, err := started.Command.Lookup("indexes").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, indexes, 2)
		idIndex := indexes[0].Document()
		assert.Equal(mt, "process_tracker_id", idIndex.Lookup("name").StringValue())
		assert.True(mt, idIndex.Lookup("unique").Boolean())
	})

	mt.Run("duplicate id reports task exists", func(mt *mtest.T) {
		repo := NewMongoTaskRepository(mt.Client, "payouts", "process_tracker")
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: payouts.process_tracker index: process_tracker_id",
		}))

		err := repo.Insert(context.Background(), &Task{ID: "t1", Runner: "R", ScheduleTime: time.Now()})
		assert.ErrorIs(mt, err, ErrTaskExists)
	})

	mt.Run("insert stores a new task", func(mt *mtest.T) {
		repo := NewMongoTaskRepository(mt.Client, "payouts", "process_tracker")
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, repo.Insert(context.Background(), &Task{ID: "t1", Runner: "R", Status: StatusFinished, ScheduleTime: time.Now()}))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		doc := started.Command.Lookup("documents").Array().Index(0).Value().Document()
		assert.Equal(mt, "t1", doc.Lookup("id").StringValue())
		assert.Equal(mt, string(StatusNew), doc.Lookup("status").StringValue())
	})

	mt.Run("fetch due claims until nothing is left", func(mt *mtest.T) {
		repo := NewMongoTaskRepository(mt.Client, "payouts", "process_tracker")
		scheduled := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
				{Key: "id", Value: "t1"},
				{Key: "name", Value: "N"},
				{Key: "runner", Value: "R"},
				{Key: "tags", Value: bson.A{"PAYOUTS"}},
				{Key: "schedule_time", Value: scheduled},
				{Key: "status", Value: string(StatusProcessing)},
				{Key: "retry_count", Value: 2},
			}}),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
		)

		tasks, err := repo.FetchDue(context.Background(), 10)
		require.NoError(mt, err)
		require.Len(mt, tasks, 1)
		assert.Equal(mt, "t1", tasks[0].ID)
		assert.Equal(mt, []string{"PAYOUTS"}, tasks[0].Tags)
		assert.Equal(mt, 2, tasks[0].RetryCount)
		assert.Equal(mt, StatusProcessing, tasks[0].Status)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "findAndModify", started.CommandName)
		set := started.Command.Lookup("update", "$set").Document()
		assert.Equal(mt, string(StatusProcessing), set.Lookup("status").StringValue())
	})

	mt.Run("mark finished only matches processing tasks", func(mt *mtest.T) {
		repo := NewMongoTaskRepository(mt.Client, "payouts", "process_tracker")
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		require.NoError(mt, repo.MarkFinished(context.Background(), "t1"))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		filter := started.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("q").Document()
		assert.Equal(mt, "t1", filter.Lookup("id").StringValue())
		assert.Equal(mt, string(StatusProcessing), filter.Lookup("status").StringValue())
	})
}
