// Package broker fans out session events to subscribers.
//
// Every client session of the execution server owns one topic, named by
// SessionTopic. Runs publish progress, reports and errors on it; the connection's
// writer subscribes with an events.Hook and forwards what it receives to the socket.
//
// Local keeps topics in memory. NATS publishes the JSON encoding of each event on
// a subject of the same name, letting runs and connections live in different
// processes.
//
//	topic := broker.Local().Topic(ctx, broker.SessionTopic(clientID))
//	sub, err := topic.Subscribe(ctx, hook)
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//	err = topic.Publish(ctx, events.Progress{RequestID: requestID, Progress: p})
package broker
