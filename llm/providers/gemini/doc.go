// Package gemini 基于 google.golang.org/genai 接入 Google Gemini。
//
// 与 OpenAI 兼容协议不同，Gemini 使用 user/model 两种角色，
// system 消息通过 GenerateContentConfig.SystemInstruction 传递。
package gemini
