/*
Package testutil 提供 AgentRoom 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup
  - 上下文断言: AssertMessagesEqual
  - 异步等待: AssertEventuallyTrue / WaitFor / WaitForChannel

# 子包

  - testutil/mocks: MockProvider（llm.Provider）、MockBackend
    （llm.ModelBackend）、MockResolver 与 RecordingSink，
    均支持 Builder 模式与错误注入
  - testutil/fixtures: 房间、参与者、对话记录与 ChatResponse 样例

# 使用示例

	backend := mocks.NewMockBackend().WithReply("我反对")
	resolver := mocks.NewMockResolver(backend)
	sink := mocks.NewRecordingSink()
*/
package testutil
