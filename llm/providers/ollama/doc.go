// Package ollama 通过原生 /api/chat 接口接入本地 Ollama 模型。
//
// 默认地址 http://localhost:11434，默认模型 llama3，请求超时 60s。
// 温度通过 options.temperature 传递，单次生成上限映射为 options.num_predict。
package ollama
