/*
包 conversation 实现多人设群聊的轮流发言编排。

# 概述

一个房间包含若干参与者，每位参与者是绑定到某个模型后端的人设。
Orchestrator 按参与者顺序轮询发言，每轮从记录中重建该参与者
视角的上下文，调用模型生成回复，先持久化再发布事件，
直到轮次耗尽或收到停止请求。

# 核心类型

  - Orchestrator：单个房间的对话循环，状态机为 idle → running → finished | idle
  - Supervisor：进程内房间任务表，提供 Start / Stop / Restart / Shutdown
  - ContextBuilder：按会话取最近 N 条记录并做角色归属转换
  - RoundRobinSelector：按列表顺序选择下一位发言者
  - BuildInstructions：根据人设属性与房间模式生成系统指令

# 失败处理

单轮生成失败（PROVIDER_ERROR、EMPTY_RESULT、CONFIGURATION_ERROR、
UNSUPPORTED_PROVIDER）按 FailurePolicy 处理：skip 记录日志后轮到下一位，
abort 发布错误通知并将房间置为 idle。存储故障等其他错误总是中止对话。

流式生成中断时，已收到的前缀仍作为一条消息保存。
*/
package conversation
